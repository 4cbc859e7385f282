package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// Load reads settings from path over the defaults. Files ending in .json
// or .jsonc are parsed as JSON with comments; anything else as YAML. A
// missing file is not an error when allowMissing is set.
func Load(path string, allowMissing bool) (*Settings, error) {
	s := Default()

	// #nosec G304
	data, err := os.ReadFile(path)
	if err != nil {
		if allowMissing && errors.Is(err, fs.ErrNotExist) {
			return s, nil
		}
		return nil, &ConfigError{Message: "failed to read " + path, Err: err}
	}

	if err := Parse(data, path, s); err != nil {
		return nil, err
	}
	return s, nil
}

// Parse decodes data into s. The name's extension selects the format.
func Parse(data []byte, name string, s *Settings) error {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json", ".jsonc":
		// JSON is a subset of YAML, so one decoder serves both.
		data = jsonc.ToJSON(data)
	}

	if err := yaml.Unmarshal(data, s); err != nil {
		return &ConfigError{Message: "failed to parse " + name, Err: err}
	}
	return nil
}

// Save writes s as YAML with a short header. Existing files are replaced.
func Save(path string, s *Settings) error {
	out, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	var sb strings.Builder
	sb.WriteString("# hdistcc settings\n")
	sb.WriteString("# Run 'hdistcc start --qty N' to bring up a build fleet.\n\n")
	sb.Write(out)

	if err := os.WriteFile(path, []byte(sb.String()), 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
