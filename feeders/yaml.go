package feeders

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// YamlFeeder is a feeder that reads YAML files
type YamlFeeder struct {
	Path string
}

// NewYamlFeeder creates a new YamlFeeder that reads from the specified YAML file
func NewYamlFeeder(filePath string) YamlFeeder {
	return YamlFeeder{Path: filePath}
}

// Feed decodes the whole document into structure.
func (y YamlFeeder) Feed(structure any) error {
	content, err := os.ReadFile(y.Path)
	if err != nil {
		return fmt.Errorf("%w %s: %w", ErrReadFile, y.Path, err)
	}
	if err := yaml.Unmarshal(content, structure); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrYamlDecode, y.Path, err)
	}
	return nil
}

// FeedKey decodes the value of a top-level key into target. A missing key is
// not an error.
func (y YamlFeeder) FeedKey(key string, target any) error {
	content, err := os.ReadFile(y.Path)
	if err != nil {
		return fmt.Errorf("%w %s: %w", ErrReadFile, y.Path, err)
	}
	return decodeYamlKey(content, key, target)
}

func decodeYamlKey(content []byte, key string, target any) error {
	var sections map[string]yaml.Node
	if err := yaml.Unmarshal(content, &sections); err != nil {
		return fmt.Errorf("%w: %w", ErrYamlDecode, err)
	}

	node, exists := sections[key]
	if !exists {
		return nil
	}
	if err := node.Decode(target); err != nil {
		return fmt.Errorf("%w: key %s: %w", ErrYamlDecode, key, err)
	}
	return nil
}
