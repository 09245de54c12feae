// Package pipeline runs a configured sequence of point cloud processing steps.
//
// Each step type is registered once with a converter that turns the raw JSON
// attributes of a step into a typed, validatable struct and a function that
// applies the step to the working cloud.
package pipeline

import (
	"sort"
	"sync"

	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"

	"go.viam.com/pointproc/config"
	"go.viam.com/pointproc/logging"
	"go.viam.com/pointproc/pointcloud"
	"go.viam.com/pointproc/utils"
)

// Env is what a step runs with besides its own attributes.
type Env struct {
	Mode   utils.ConcurrencyMode
	Seed   int64
	Logger logging.Logger
}

type (
	// An AttributeMapConverter converts raw step attributes into a native attribute type.
	AttributeMapConverter[AttrsT config.Validator] func(attributes config.AttributeMap) (AttrsT, error)

	// A RunFunc applies a step to cloud. It returns the cloud following steps
	// work on, which is cloud itself unless the step produces a new collection.
	RunFunc[AttrsT config.Validator] func(cloud *pointcloud.PointSet, attrs AttrsT, env Env) (*pointcloud.PointSet, StepResult, error)
)

// A Registration describes how to build and run a step type.
type Registration[AttrsT config.Validator] struct {
	AttributeMapConverter AttributeMapConverter[AttrsT]
	Run                   RunFunc[AttrsT]
}

var (
	registryMu sync.RWMutex
	registry   = map[string]Registration[config.Validator]{}
)

// RegisterStep registers a step type. Registering the same type twice panics.
func RegisterStep[AttrsT config.Validator](stepType string, reg Registration[AttrsT]) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, old := registry[stepType]; old {
		panic(errors.Errorf("trying to register two of the same step type: %s", stepType))
	}
	if reg.AttributeMapConverter == nil || reg.Run == nil {
		panic(errors.Errorf("cannot register step type %s without a converter and a run function", stepType))
	}
	registry[stepType] = makeGenericRegistration(reg)
}

// Deregister removes a step type, mostly for tests.
func Deregister(stepType string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(registry, stepType)
}

// LookupRegistration returns the registration of a step type.
func LookupRegistration(stepType string) (Registration[config.Validator], bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	reg, ok := registry[stepType]
	return reg, ok
}

// RegisteredStepTypes returns all registered step types, sorted.
func RegisteredStepTypes() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]string, 0, len(registry))
	for t := range registry {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func makeGenericRegistration[AttrsT config.Validator](reg Registration[AttrsT]) Registration[config.Validator] {
	return Registration[config.Validator]{
		AttributeMapConverter: func(attributes config.AttributeMap) (config.Validator, error) {
			return reg.AttributeMapConverter(attributes)
		},
		Run: func(cloud *pointcloud.PointSet, attrs config.Validator, env Env) (*pointcloud.PointSet, StepResult, error) {
			typed, ok := attrs.(AttrsT)
			if !ok {
				var zero AttrsT
				return nil, StepResult{}, utils.NewUnexpectedTypeError(zero, attrs)
			}
			return reg.Run(cloud, typed, env)
		},
	}
}

// DecodeAttributes decodes raw attributes into out, a pointer to a struct
// whose fields carry json tags. Fields of embedded structs are promoted.
// Unknown attributes are an error.
func DecodeAttributes(attributes config.AttributeMap, out interface{}) error {
	if len(attributes) == 0 {
		return nil
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:     "json",
		Result:      out,
		Squash:      true,
		ErrorUnused: true,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(map[string]interface{}(attributes))
}

// attributeConverter returns a converter that decodes into a copy of defaults.
func attributeConverter[T any, PT interface {
	*T
	config.Validator
}](defaults T) AttributeMapConverter[PT] {
	return func(attributes config.AttributeMap) (PT, error) {
		out := defaults
		if err := DecodeAttributes(attributes, &out); err != nil {
			return nil, err
		}
		return PT(&out), nil
	}
}
