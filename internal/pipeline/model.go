// Package pipeline orchestrates build/test/infrastructure/deploy stages:
// a stage graph gated on dependency success, concurrent jobs inside each
// stage, artifact hand-off with per-stage retention, and a SQLite-backed
// run store for history and garbage collection.
package pipeline

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"github.com/distribution/reference"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Pipeline is a parsed pipeline definition.
type Pipeline struct {
	Name   string  `yaml:"name" validate:"required"`
	Stages []Stage `yaml:"stages" validate:"required,min=1,dive"`
}

// Stage groups jobs that run together. A stage starts only once every stage
// named in Needs has succeeded; when Needs is empty it defaults to the
// previous stage in the file.
type Stage struct {
	Name        string   `yaml:"name" validate:"required"`
	Needs       []string `yaml:"needs"`
	ArtifactTTL Duration `yaml:"artifactTTL"`
	Jobs        []Job    `yaml:"jobs" validate:"required,min=1,dive"`
}

// Job is a unit of work inside a stage. Exactly one of Run or Apply must be
// set: Run is a shell script (optionally executed inside Image), Apply marks
// the single plan+apply invocation of the infrastructure stage.
type Job struct {
	Name    string         `yaml:"name" validate:"required"`
	Image   string         `yaml:"image"`
	Run     []string       `yaml:"run"`
	Apply   bool           `yaml:"apply"`
	Inputs  []string       `yaml:"inputs"`
	Outputs []ArtifactSpec `yaml:"outputs" validate:"dive"`
	Timeout Duration       `yaml:"timeout"`
	Retries int            `yaml:"retries" validate:"gte=0"`
}

// ArtifactSpec declares a job output: the artifact name it is recorded under
// and the path, relative to the working directory, it is collected from.
type ArtifactSpec struct {
	Name string `yaml:"name" validate:"required"`
	Path string `yaml:"path" validate:"required"`
}

// Duration decodes "90s"-style strings from YAML.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// LoadPipeline reads, parses and validates a pipeline definition. Empty
// Needs lists are defaulted to the preceding stage before validation.
func LoadPipeline(path string) (*Pipeline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading pipeline definition: %w", err)
	}

	var pl Pipeline
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&pl); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	for i := range pl.Stages {
		if len(pl.Stages[i].Needs) == 0 && i > 0 {
			pl.Stages[i].Needs = []string{pl.Stages[i-1].Name}
		}
	}

	if err := pl.Validate(); err != nil {
		return nil, err
	}
	return &pl, nil
}

// Validate checks the structural and semantic rules the struct tags cannot
// express: unique stage names, needs pointing at earlier stages, job shape
// and image references.
func (p *Pipeline) Validate() error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("invalid pipeline: %w", err)
	}

	seen := make(map[string]int, len(p.Stages))
	for i, st := range p.Stages {
		if _, dup := seen[st.Name]; dup {
			return fmt.Errorf("duplicate stage name %q", st.Name)
		}
		seen[st.Name] = i
	}

	for i, st := range p.Stages {
		for _, need := range st.Needs {
			j, ok := seen[need]
			if !ok {
				return fmt.Errorf("stage %q needs unknown stage %q", st.Name, need)
			}
			if j >= i {
				return fmt.Errorf("stage %q needs %q, which is not an earlier stage", st.Name, need)
			}
		}
		for _, job := range st.Jobs {
			if err := validateJob(st.Name, &job); err != nil {
				return err
			}
		}
	}
	return nil
}

func validateJob(stage string, job *Job) error {
	if job.Apply && len(job.Run) > 0 {
		return fmt.Errorf("job %s/%s: apply and run are mutually exclusive", stage, job.Name)
	}
	if !job.Apply && len(job.Run) == 0 {
		return fmt.Errorf("job %s/%s: one of run or apply is required", stage, job.Name)
	}
	if job.Image != "" {
		if _, err := reference.ParseNormalizedNamed(job.Image); err != nil {
			return fmt.Errorf("job %s/%s: invalid image %q: %w", stage, job.Name, job.Image, err)
		}
	}
	return nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())
