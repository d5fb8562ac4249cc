package blueprint

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// LoadFile loads and validates a blueprint from a YAML file.
func LoadFile(path string) (*Blueprint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading blueprint file: %w", err)
	}

	bp, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return bp, nil
}

// Parse decodes and validates blueprint YAML.
func Parse(data []byte) (*Blueprint, error) {
	var bp Blueprint
	if err := yaml.Unmarshal(data, &bp); err != nil {
		return nil, fmt.Errorf("parsing blueprint: %w", err)
	}

	if err := bp.Validate(); err != nil {
		return nil, err
	}
	return &bp, nil
}

// Export renders the blueprint as YAML, suitable as a starting point for
// customization.
func Export(bp *Blueprint) ([]byte, error) {
	return yaml.Marshal(bp)
}

// SaveFile writes the blueprint to a YAML file, creating parent
// directories as needed.
func SaveFile(path string, bp *Blueprint) error {
	data, err := Export(bp)
	if err != nil {
		return fmt.Errorf("marshaling blueprint: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating blueprint directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing blueprint file: %w", err)
	}
	return nil
}
