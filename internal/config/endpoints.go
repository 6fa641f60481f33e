package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"signcoach/internal/domain"
)

// endpointFile is the on-disk endpoint table:
//
//	endpoints:
//	  alphabet: http://localhost:5000
//	  words: https://words.example.com
type endpointFile struct {
	Endpoints map[string]string `yaml:"endpoints"`
}

var endpointEnv = map[domain.Category]string{
	domain.CategoryAlphabet: "SIGNCOACH_ENDPOINT_ALPHABET",
	domain.CategoryNumbers:  "SIGNCOACH_ENDPOINT_NUMBERS",
	domain.CategoryWords:    "SIGNCOACH_ENDPOINT_WORDS",
}

// ResolveEndpoints loads the endpoint file and applies environment overrides.
func ResolveEndpoints(path string) (domain.EndpointTable, error) {
	table, err := LoadEndpoints(path)
	if err != nil {
		return nil, err
	}
	for category, key := range endpointEnv {
		if value := strings.TrimSpace(os.Getenv(key)); value != "" {
			table[category] = value
		}
	}
	return table, nil
}

// LoadEndpoints reads an endpoint table. A blank path or missing file yields
// an empty table; an unknown category is an error.
func LoadEndpoints(path string) (domain.EndpointTable, error) {
	table := domain.EndpointTable{}
	if strings.TrimSpace(path) == "" {
		return table, nil
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return table, nil
		}
		return nil, fmt.Errorf("failed to read endpoints file %q: %w", path, err)
	}
	return ParseEndpoints(contents)
}

func ParseEndpoints(contents []byte) (domain.EndpointTable, error) {
	var file endpointFile
	if err := yaml.Unmarshal(contents, &file); err != nil {
		return nil, fmt.Errorf("failed to parse endpoints: %w", err)
	}

	table := domain.EndpointTable{}
	for key, value := range file.Endpoints {
		category, err := domain.ParseCategory(key)
		if err != nil {
			return nil, err
		}
		if endpoint := strings.TrimSpace(value); endpoint != "" {
			table[category] = endpoint
		}
	}
	return table, nil
}
