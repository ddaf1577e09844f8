package service

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const downstreamYAML = `
name: down
display_name: Downstream
keep_dependencies: true
artifacts:
  - "out/**/*.txt"
retention:
  keep_last: 5
consumes:
  - job: up
    artifacts: ["*.jar"]
stages:
  - stage: build
    steps:
      - step: compile
        script: echo compiled > out.txt
        timeout_seconds: 30
`

func TestParseJobScript(t *testing.T) {
	t.Run("success - job definition parsed", func(t *testing.T) {
		// act
		js, err := ParseJobScript([]byte(downstreamYAML))

		// assert
		require.NoError(t, err)
		assert.Equal(t, "down", js.Name)
		assert.Equal(t, "Downstream", js.DisplayName)
		assert.True(t, js.KeepDependencies)
		assert.Equal(t, 5, js.Retention.KeepLast)
		require.Len(t, js.Consumes, 1)
		assert.Equal(t, "up", js.Consumes[0].Job)
		require.Len(t, js.Stages, 1)
		assert.Equal(t, int64(30), js.Stages[0].Steps[0].TimeoutSeconds)
		assert.Equal(t, "Downstream", js.Options().DisplayName)
	})
	t.Run("failure - unknown field", func(t *testing.T) {
		// act
		_, err := ParseJobScript([]byte("name: a\nkeep_dependency: true\n"))

		// assert
		assert.Error(t, err)
	})
	t.Run("failure - name unusable as a path", func(t *testing.T) {
		// act
		_, err := ParseJobScript([]byte("name: ../etc\n"))

		// assert
		assert.ErrorContains(t, err, "invalid job name")
	})
	t.Run("failure - step without script", func(t *testing.T) {
		// act
		_, err := ParseJobScript([]byte("name: a\nstages:\n  - stage: s\n    steps:\n      - step: empty\n"))

		// assert
		assert.ErrorContains(t, err, "has no script")
	})
	t.Run("failure - job consuming itself", func(t *testing.T) {
		// act
		_, err := ParseJobScript([]byte("name: a\nconsumes:\n  - job: a\n"))

		// assert
		assert.Error(t, err)
	})
}

func TestLoadJobScripts(t *testing.T) {
	t.Run("success - yaml files loaded in name order", func(t *testing.T) {
		// arrange
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "b.yml"), []byte(downstreamYAML), 0o644))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yaml"), []byte("name: up\n"), 0o644))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.md"), []byte("# not a job"), 0o644))

		// act
		scripts, err := LoadJobScripts(dir)

		// assert
		require.NoError(t, err)
		require.Len(t, scripts, 2)
		assert.Equal(t, "up", scripts[0].Name)
		assert.Equal(t, "down", scripts[1].Name)
	})
	t.Run("failure - duplicate job names", func(t *testing.T) {
		// arrange
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yml"), []byte("name: up\n"), 0o644))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "b.yml"), []byte("name: up\n"), 0o644))

		// act
		_, err := LoadJobScripts(dir)

		// assert
		assert.ErrorContains(t, err, "already defined")
	})
}
