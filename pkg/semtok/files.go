package semtok

import (
	"encoding/json"

	"github.com/spf13/afero"
	"gitlab.com/tozd/go/errors"
	"gopkg.in/yaml.v3"
)

// legendFile is the on-disk YAML shape. Field names match what servers put
// in their capability advertisement so a captured legend can be saved as is.
type legendFile struct {
	TokenTypes     []string `yaml:"tokenTypes"`
	TokenModifiers []string `yaml:"tokenModifiers"`
}

// LoadLegend reads a legend from a YAML file.
func LoadLegend(fsys afero.Fs, path string) (Legend, error) {
	raw, err := afero.ReadFile(fsys, path)
	if err != nil {
		return Legend{}, errors.Errorf("reading legend file: %w", err)
	}
	var lf legendFile
	if err := yaml.Unmarshal(raw, &lf); err != nil {
		return Legend{}, errors.Errorf("parsing legend file %s: %w", path, err)
	}
	return Legend{Types: lf.TokenTypes, Modifiers: lf.TokenModifiers}, nil
}

// LoadStream reads a token stream from a JSON integer array file, the shape
// servers send in the "data" field.
func LoadStream(fsys afero.Fs, path string) (TokenStream, error) {
	raw, err := afero.ReadFile(fsys, path)
	if err != nil {
		return nil, errors.Errorf("reading token file: %w", err)
	}
	var stream TokenStream
	if err := json.Unmarshal(raw, &stream); err != nil {
		return nil, errors.Errorf("parsing token file %s: %w", path, err)
	}
	return stream, nil
}
