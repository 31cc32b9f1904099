package feeders

import (
	"fmt"
	"os"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// JSONFeeder reads JSON files. Comments and trailing commas are accepted.
//
// The document is decoded through the YAML decoder (JSON is a YAML subset), so
// struct fields use their `yaml` tags and durations may be written as "2s".
type JSONFeeder struct {
	Path string
}

// NewJSONFeeder creates a new JSONFeeder that reads from the specified file
func NewJSONFeeder(filePath string) JSONFeeder {
	return JSONFeeder{Path: filePath}
}

func (j JSONFeeder) read() ([]byte, error) {
	content, err := os.ReadFile(j.Path)
	if err != nil {
		return nil, fmt.Errorf("%w %s: %w", ErrReadFile, j.Path, err)
	}
	return jsonc.ToJSON(content), nil
}

// Feed decodes the whole document into structure.
func (j JSONFeeder) Feed(structure any) error {
	content, err := j.read()
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(content, structure); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrJSONDecode, j.Path, err)
	}
	return nil
}

// FeedKey decodes the value of a top-level key into target.
func (j JSONFeeder) FeedKey(key string, target any) error {
	content, err := j.read()
	if err != nil {
		return err
	}
	if err := decodeYamlKey(content, key, target); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrJSONDecode, j.Path, err)
	}
	return nil
}
