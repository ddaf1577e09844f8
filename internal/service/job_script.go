package service

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/goccy/go-yaml"

	"github.com/haatos/runkeeper/internal/build"
)

var jobNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

type Step struct {
	Step           string `yaml:"step"`
	Script         string `yaml:"script"`
	TimeoutSeconds int64  `yaml:"timeout_seconds"`
}

type Stage struct {
	Stage string `yaml:"stage"`
	Steps []Step `yaml:"steps"`
}

type Consume struct {
	Job       string   `yaml:"job"`
	Artifacts []string `yaml:"artifacts"`
}

type Retention struct {
	KeepLast int `yaml:"keep_last"`
}

// JobScript is a job definition file.
type JobScript struct {
	Name             string    `yaml:"name"`
	DisplayName      string    `yaml:"display_name"`
	KeepDependencies bool      `yaml:"keep_dependencies"`
	Artifacts        []string  `yaml:"artifacts"`
	Storage          string    `yaml:"storage"`
	Retention        Retention `yaml:"retention"`
	Consumes         []Consume `yaml:"consumes"`
	Stages           []Stage   `yaml:"stages"`
}

func ParseJobScript(b []byte) (*JobScript, error) {
	js := new(JobScript)
	if err := yaml.UnmarshalWithOptions(b, js, yaml.Strict()); err != nil {
		return nil, err
	}
	if err := js.Validate(); err != nil {
		return nil, err
	}
	return js, nil
}

func (js *JobScript) Validate() error {
	if !jobNamePattern.MatchString(js.Name) {
		return fmt.Errorf("invalid job name %q", js.Name)
	}
	if js.Retention.KeepLast < 0 {
		return errors.New("retention.keep_last must not be negative")
	}
	for _, pattern := range js.Artifacts {
		if !doublestar.ValidatePattern(pattern) {
			return fmt.Errorf("invalid artifact pattern %q", pattern)
		}
	}
	for _, c := range js.Consumes {
		if c.Job == "" || c.Job == js.Name {
			return fmt.Errorf("job %s: invalid upstream job %q", js.Name, c.Job)
		}
		for _, pattern := range c.Artifacts {
			if !doublestar.ValidatePattern(pattern) {
				return fmt.Errorf("invalid artifact pattern %q", pattern)
			}
		}
	}
	for _, stage := range js.Stages {
		for _, step := range stage.Steps {
			if step.Script == "" {
				return fmt.Errorf("job %s: step '%s' in stage '%s' has no script", js.Name, step.Step, stage.Stage)
			}
			if step.TimeoutSeconds < 0 {
				return fmt.Errorf("job %s: step '%s' has a negative timeout", js.Name, step.Step)
			}
		}
	}
	return nil
}

func (js *JobScript) Options() build.JobOptions {
	return build.JobOptions{
		DisplayName:      js.DisplayName,
		KeepDependencies: js.KeepDependencies,
		Artifacts:        js.Artifacts,
		Storage:          js.Storage,
	}
}

// LoadJobScripts parses every .yml and .yaml file in dir, sorted by file name.
func LoadJobScripts(dir string) ([]*JobScript, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	scripts := make([]*JobScript, 0)
	names := make(map[string]string)
	for _, e := range entries {
		if e.IsDir() || !slices.Contains([]string{".yml", ".yaml"}, filepath.Ext(e.Name())) {
			continue
		}
		b, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		js, err := ParseJobScript(b)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", e.Name(), err)
		}
		if other, ok := names[js.Name]; ok {
			return nil, fmt.Errorf("%s: job %s already defined in %s", e.Name(), js.Name, other)
		}
		names[js.Name] = e.Name()
		scripts = append(scripts, js)
	}
	return scripts, nil
}
