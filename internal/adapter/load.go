package adapter

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

//go:embed retailers.yaml
var builtinRetailers []byte

type document struct {
	Retailers []Adapter `yaml:"retailers"`
}

// Defaults returns the built-in retailer adapters.
func Defaults() ([]Adapter, error) {
	return Parse(builtinRetailers)
}

// LoadFile reads adapters from a YAML file. An empty path yields the defaults.
func LoadFile(path string) ([]Adapter, error) {
	if path == "" {
		return Defaults()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read adapters file: %w", err)
	}

	return Parse(data)
}

// Parse decodes and validates a YAML adapter document.
func Parse(data []byte) ([]Adapter, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse adapters: %w", err)
	}

	if err := Validate(doc.Retailers); err != nil {
		return nil, err
	}

	return doc.Retailers, nil
}

// Validate checks every adapter's required fields and that names are unique.
func Validate(adapters []Adapter) error {
	if len(adapters) == 0 {
		return fmt.Errorf("at least one retailer adapter is required")
	}

	validate := validator.New()
	seen := make(map[string]bool, len(adapters))

	for i, a := range adapters {
		if err := validate.Struct(a); err != nil {
			return fmt.Errorf("invalid adapter %d (%q): %w", i, a.Name, err)
		}

		key := strings.ToLower(a.Name)
		if seen[key] {
			return fmt.Errorf("duplicate adapter name: %s", a.Name)
		}
		seen[key] = true
	}

	return nil
}
