package manifest

import (
	"fmt"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Load reads a blueprint from the given filename (e.g. "blueprint.yaml").
// It returns the parsed document or an error. Load does not validate;
// call Validate on the result before provisioning.
func Load(filename string) (*Blueprint, error) {
	v := viper.New()
	v.SetConfigFile(filename)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil, fmt.Errorf("blueprint file %s not found", filename)
		}
		return nil, fmt.Errorf("error reading blueprint file: %w", err)
	}

	var bp Blueprint
	if err := v.Unmarshal(&bp); err != nil {
		return nil, fmt.Errorf("unable to decode blueprint: %w", err)
	}

	return &bp, nil
}

// Marshal serializes the blueprint back to YAML. Load followed by
// Marshal yields a semantically equivalent document: same declarations,
// same values, reference forms preserved.
func (b *Blueprint) Marshal() ([]byte, error) {
	out, err := yaml.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("unable to encode blueprint: %w", err)
	}
	return out, nil
}
