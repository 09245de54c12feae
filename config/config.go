// Package config defines the JSON description of a point cloud processing run.
package config

import (
	"fmt"

	"github.com/pkg/errors"
	goutils "go.viam.com/utils"

	"go.viam.com/pointproc/utils"
)

// Config describes a processing run: global settings and the ordered steps to
// apply to a cloud.
type Config struct {
	ConfigFilePath string `json:"-"`

	// Concurrency is "sequential" (default) or "parallel".
	Concurrency string `json:"concurrency,omitempty"`
	// Seed drives every randomized step that does not set its own.
	Seed  int64  `json:"seed,omitempty"`
	Steps []Step `json:"steps,omitempty"`
}

// A Step is one operation of a run.
type Step struct {
	// Name optionally identifies the step in logs and results; it defaults to the type.
	Name       string       `json:"name,omitempty"`
	Type       string       `json:"type"`
	Attributes AttributeMap `json:"attributes,omitempty"`

	// ConvertedAttributes holds the typed attributes once a step registration
	// has converted them.
	ConvertedAttributes interface{} `json:"-"`
}

// StepName returns the name of the step, or its type when it has none.
func (s Step) StepName() string {
	if s.Name != "" {
		return s.Name
	}
	return s.Type
}

// Validate ensures all parts of the step are valid.
func (s *Step) Validate(path string) error {
	if s.Type == "" {
		return goutils.NewConfigValidationFieldRequiredError(path, "type")
	}
	if validator, ok := s.ConvertedAttributes.(Validator); ok {
		if err := validator.Validate(fmt.Sprintf("%s.attributes", path)); err != nil {
			return err
		}
	}
	return nil
}

// A Validator validates converted step attributes.
type Validator interface {
	Validate(path string) error
}

// Mode returns the configured concurrency mode.
func (c *Config) Mode() (utils.ConcurrencyMode, error) {
	return utils.ParseConcurrencyMode(c.Concurrency)
}

// Ensure ensures all parts of the config are valid.
func (c *Config) Ensure() error {
	if _, err := c.Mode(); err != nil {
		return goutils.NewConfigValidationError("concurrency", err)
	}
	seen := make(map[string]struct{}, len(c.Steps))
	for idx := range c.Steps {
		path := fmt.Sprintf("%s.%d", "steps", idx)
		step := &c.Steps[idx]
		if err := step.Validate(path); err != nil {
			return err
		}
		if step.Name == "" {
			continue
		}
		if _, ok := seen[step.Name]; ok {
			return goutils.NewConfigValidationError(path, errors.Errorf("duplicate step name %q", step.Name))
		}
		seen[step.Name] = struct{}{}
	}
	return nil
}
