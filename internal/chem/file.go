package chem

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// directoryFile is the on-disk YAML shape.
type directoryFile struct {
	Chemicals []*Chemical `yaml:"chemicals"`
}

// LoadFile reads a chemical directory from a YAML file, validating and
// deduplicating entries.
func LoadFile(path string) (*Directory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read chemical directory: %w", err)
	}
	var f directoryFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse chemical directory %s: %w", path, err)
	}
	if len(f.Chemicals) == 0 {
		return nil, fmt.Errorf("chemical directory %s has no entries", path)
	}
	d, err := NewDirectory(f.Chemicals)
	if err != nil {
		return nil, fmt.Errorf("chemical directory %s: %w", path, err)
	}
	return d, nil
}

// SaveFile writes the directory back out in load order.
func (d *Directory) SaveFile(path string) error {
	f := directoryFile{}
	for _, name := range d.order {
		f.Chemicals = append(f.Chemicals, d.byName[name])
	}
	data, err := yaml.Marshal(&f)
	if err != nil {
		return fmt.Errorf("marshal chemical directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write chemical directory: %w", err)
	}
	return nil
}
