package build

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGuard_CanDelete(t *testing.T) {
	t.Run("failure - running record", func(t *testing.T) {
		// arrange
		r := NewJob("stuff", JobOptions{}).NewRecord()
		require.NoError(t, r.Start(&fakeExecutor{id: "e1"}))
		g := NewGuard(nil)

		// act
		d := g.CanDelete(r)

		// assert
		assert.False(t, d.Allowed)
		assert.Equal(t, ReasonStillRunning, d.Reason)
	})
	t.Run("success - completed record without consumers", func(t *testing.T) {
		// arrange
		r := completedRecord(NewJob("stuff", JobOptions{}))
		g := NewGuard(fakeDeps{})

		// act
		d := g.CanDelete(r)

		// assert
		assert.True(t, d.Allowed)
		assert.Empty(t, d.Reason)
	})
	t.Run("success - own keep flag does not deny deletion", func(t *testing.T) {
		// arrange
		r := completedRecord(NewJob("stuff", JobOptions{}))
		_, _ = r.MarkKeep()
		g := NewGuard(nil)

		// act
		d := g.CanDelete(r)

		// assert
		assert.True(t, d.Allowed)
	})
	t.Run("failure - kept downstream record protects its producer", func(t *testing.T) {
		// arrange
		up := completedRecord(NewJob("up", JobOptions{}))
		downJob := NewJob("down", JobOptions{KeepDependencies: true})
		down := completedRecord(downJob)
		_, _ = down.MarkKeep()
		g := NewGuard(fakeDeps{up: {down}})

		// act
		d := g.CanDelete(up)

		// assert
		assert.False(t, d.Allowed)
		assert.Equal(t, "kept because of down #1", d.Reason)
		assert.Equal(t, down, d.Protector)
	})
	t.Run("success - consumer job without keep dependencies does not protect", func(t *testing.T) {
		// arrange
		up := completedRecord(NewJob("up", JobOptions{}))
		down := completedRecord(NewJob("down", JobOptions{}))
		_, _ = down.MarkKeep()
		g := NewGuard(fakeDeps{up: {down}})

		// act
		d := g.CanDelete(up)

		// assert
		assert.True(t, d.Allowed)
	})
	t.Run("success - unkept consumer does not protect", func(t *testing.T) {
		// arrange
		up := completedRecord(NewJob("up", JobOptions{}))
		down := completedRecord(NewJob("down", JobOptions{KeepDependencies: true}))
		g := NewGuard(fakeDeps{up: {down}})

		// act
		d := g.CanDelete(up)

		// assert
		assert.True(t, d.Allowed)
	})
	t.Run("failure - protection is transitive", func(t *testing.T) {
		// arrange
		a := completedRecord(NewJob("a", JobOptions{}))
		b := completedRecord(NewJob("b", JobOptions{KeepDependencies: true}))
		c := completedRecord(NewJob("c", JobOptions{KeepDependencies: true}))
		_, _ = c.MarkKeep()
		g := NewGuard(fakeDeps{a: {b}, b: {c}})

		// act
		d := g.CanDelete(a)

		// assert
		assert.False(t, d.Allowed)
		assert.Equal(t, b, d.Protector)
		assert.Equal(t, "kept because of b #1", d.Reason)
	})
	t.Run("success - cycles terminate", func(t *testing.T) {
		// arrange
		a := completedRecord(NewJob("a", JobOptions{KeepDependencies: true}))
		b := completedRecord(NewJob("b", JobOptions{KeepDependencies: true}))
		g := NewGuard(fakeDeps{a: {b}, b: {a}})

		// act
		d := g.CanDelete(a)

		// assert
		assert.True(t, d.Allowed)
	})
	t.Run("success - reason carries the raw display name", func(t *testing.T) {
		// arrange
		up := completedRecord(NewJob("up", JobOptions{}))
		downJob := NewJob("down", JobOptions{KeepDependencies: true})
		down := completedRecord(downJob)
		_, _ = down.MarkKeep()
		downJob.SetDisplayName("Down<img src=x onerror=alert(123)>Project")
		g := NewGuard(fakeDeps{up: {down}})

		// act
		why := g.WhyKeep(up)

		// assert
		assert.Equal(t, "kept because of Down<img src=x onerror=alert(123)>Project #1", why)
	})
}

func TestGuard_CanToggleKeep(t *testing.T) {
	t.Run("success - completed record", func(t *testing.T) {
		// arrange
		r := completedRecord(NewJob("stuff", JobOptions{}))
		g := NewGuard(nil)

		// act
		ok := g.CanToggleKeep(r)

		// assert
		assert.True(t, ok)
	})
	t.Run("failure - running record", func(t *testing.T) {
		// arrange
		r := NewJob("stuff", JobOptions{}).NewRecord()
		require.NoError(t, r.Start(&fakeExecutor{id: "e1"}))
		g := NewGuard(nil)

		// act
		ok := g.CanToggleKeep(r)

		// assert
		assert.False(t, ok)
	})
	t.Run("failure - retained only through a consumer", func(t *testing.T) {
		// arrange
		up := completedRecord(NewJob("up", JobOptions{}))
		down := completedRecord(NewJob("down", JobOptions{KeepDependencies: true}))
		_, _ = down.MarkKeep()
		g := NewGuard(fakeDeps{up: {down}})

		// act
		ok := g.CanToggleKeep(up)

		// assert
		assert.False(t, ok)
	})
}
