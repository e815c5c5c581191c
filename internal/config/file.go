package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// LoadFile overlays the YAML file at path onto cfg. Keys missing from the
// file keep their current values; unknown keys are an error.
func LoadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}

// Resolve applies the file named by --config-file, if any, then re-applies
// every flag that was set explicitly so the command line wins.
func Resolve(fs *pflag.FlagSet, cfg *Config) error {
	path, err := fs.GetString(FlagConfigFile)
	if err != nil || path == "" {
		return nil
	}

	explicit := make(map[string]string)
	fs.Visit(func(f *pflag.Flag) {
		if f.Name != FlagConfigFile {
			explicit[f.Name] = f.Value.String()
		}
	})

	if err := LoadFile(path, cfg); err != nil {
		return err
	}

	for name, value := range explicit {
		if err := fs.Set(name, value); err != nil {
			return fmt.Errorf("re-applying --%s: %w", name, err)
		}
	}
	return nil
}

// Save writes cfg as YAML.
func Save(w io.Writer, cfg *Config) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return err
	}
	return enc.Close()
}
