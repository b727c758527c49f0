package swing

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadConfig reads a detector config YAML file. Keys missing from the file keep
// their DefaultConfig value; unknown keys are rejected.
// Returns the raw bytes as well so callers can record what was loaded.
func LoadConfig(path string) (Config, []byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, nil, err
	}

	cfg, err := ParseConfig(data)
	if err != nil {
		return Config{}, data, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, data, nil
}

// ParseConfig decodes YAML on top of DefaultConfig and validates the result.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if len(bytes.TrimSpace(data)) == 0 {
		return cfg, nil
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true) // 오타/미사용 필드 즉시 실패
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
