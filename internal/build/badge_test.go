package build

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticBadges []Badge

func (s *staticBadges) BadgesFor(r *Record) []Badge {
	return *s
}

type panickingBadges struct{}

func (panickingBadges) BadgesFor(r *Record) []Badge {
	panic("boom")
}

func TestBadgeSet_For(t *testing.T) {
	t.Run("success - fresh record has no badges", func(t *testing.T) {
		// arrange
		r := completedRecord(NewJob("stuff", JobOptions{}))
		bs := NewBadgeSet(NewGuard(nil), nil)

		// act
		badges := bs.For(r)

		// assert
		assert.Empty(t, badges)
	})
	t.Run("success - kept record has exactly one kept badge", func(t *testing.T) {
		// arrange
		r := completedRecord(NewJob("stuff", JobOptions{}))
		bs := NewBadgeSet(NewGuard(nil), nil)
		_, err := r.MarkKeep()
		require.NoError(t, err)
		_, err = r.MarkKeep()
		require.NoError(t, err)

		// act
		badges := bs.For(r)

		// assert
		require.Len(t, badges, 1)
		assert.Equal(t, KeptBadgeIcon, badges[0].Icon)
		assert.Equal(t, ReasonMarkedKeep, badges[0].Tooltip)
	})
	t.Run("success - badge disappears after unkeep", func(t *testing.T) {
		// arrange
		r := completedRecord(NewJob("stuff", JobOptions{}))
		bs := NewBadgeSet(NewGuard(nil), nil)
		_, _ = r.MarkKeep()

		// act
		_, _ = r.Unkeep()

		// assert
		assert.Empty(t, bs.For(r))
	})
	t.Run("success - protected producer shows the downstream tooltip", func(t *testing.T) {
		// arrange
		up := completedRecord(NewJob("up", JobOptions{}))
		down := completedRecord(NewJob("down", JobOptions{KeepDependencies: true}))
		_, _ = down.MarkKeep()
		bs := NewBadgeSet(NewGuard(fakeDeps{up: {down}}), nil)

		// act
		badges := bs.For(up)

		// assert
		require.Len(t, badges, 1)
		assert.Equal(t, "kept because of down #1", badges[0].Tooltip)
	})
	t.Run("success - providers follow the kept badge in registration order", func(t *testing.T) {
		// arrange
		r := completedRecord(NewJob("stuff", JobOptions{}))
		_, _ = r.MarkKeep()
		registry := NewBadgeRegistry()
		first := &staticBadges{{Icon: "one"}}
		second := &staticBadges{{Icon: "two"}, {Tooltip: "invisible"}}
		registry.Register(first)
		registry.Register(second)
		registry.Register(first)
		bs := NewBadgeSet(NewGuard(nil), registry)

		// act
		badges := bs.For(r)

		// assert
		require.Len(t, badges, 4)
		assert.Equal(t, KeptBadgeIcon, badges[0].Icon)
		assert.Equal(t, "one", badges[1].Icon)
		assert.Equal(t, "two", badges[2].Icon)
		assert.False(t, badges[3].Visible())
	})
	t.Run("success - panicking provider is skipped", func(t *testing.T) {
		// arrange
		r := completedRecord(NewJob("stuff", JobOptions{}))
		registry := NewBadgeRegistry()
		registry.Register(panickingBadges{})
		registry.Register(&staticBadges{{Icon: "ok"}})
		bs := NewBadgeSet(NewGuard(nil), registry)

		// act
		badges := bs.For(r)

		// assert
		require.Len(t, badges, 1)
		assert.Equal(t, "ok", badges[0].Icon)
	})
	t.Run("success - unregistered provider no longer contributes", func(t *testing.T) {
		// arrange
		r := completedRecord(NewJob("stuff", JobOptions{}))
		registry := NewBadgeRegistry()
		p := &staticBadges{{Icon: "gone"}}
		registry.Register(p)
		bs := NewBadgeSet(NewGuard(nil), registry)

		// act
		registry.Unregister(p)

		// assert
		assert.Empty(t, bs.For(r))
	})
}
