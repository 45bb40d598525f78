package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// Load reads path (oxy.yml / project.yml), loads .env/.env.local from its
// directory first, expands environment references, decodes into a
// Project, fills defaults, and validates — mirroring the teacher's
// Loader.Load pipeline (pkg/config/loader.go), minus the Watch/provider
// abstraction Oxy's static one-shot config load doesn't need.
func Load(path string) (*Project, error) {
	dir := filepath.Dir(path)
	if err := loadEnvFiles(dir); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	expanded, ok := expandEnvVarsInData(raw).(map[string]interface{})
	if !ok {
		expanded = map[string]interface{}{}
	}

	project := &Project{}
	if err := decodeProject(expanded, project); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	project.rootDir = dir

	project.SetDefaults()
	if err := project.Validate(); err != nil {
		return nil, err
	}
	return project, nil
}

// decodeProject decodes a loosely-typed map onto a Project using the
// teacher's mapstructure.DecoderConfig shape.
func decodeProject(input map[string]interface{}, out *Project) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		TagName:          "yaml",
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return fmt.Errorf("building decoder: %w", err)
	}
	return decoder.Decode(input)
}
