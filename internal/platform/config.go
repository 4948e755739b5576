package platform

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// FileConfig mirrors notesync.yaml. Unset fields keep their defaults.
type FileConfig struct {
	Adapter        string   `yaml:"adapter"`
	URI            string   `yaml:"uri"`
	Collection     string   `yaml:"collection"`
	Extension      string   `yaml:"extension"`
	EventBuffer    int      `yaml:"event_buffer"`
	WriteTimeout   Duration `yaml:"write_timeout"`
	RequestTimeout Duration `yaml:"request_timeout"`
	PollInterval   Duration `yaml:"poll_interval"`
	Versioning     *bool    `yaml:"versioning"`
	ReadOnly       *bool    `yaml:"read_only"`
	Listen         string   `yaml:"listen"`
}

// Duration is a time.Duration written as "5s" or "250ms" in YAML.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// LoadConfig reads a YAML config file. Unknown keys are rejected.
func LoadConfig(path string) (*FileConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config: %w", err)
	}
	defer f.Close()

	var cfg FileConfig
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return &cfg, nil
}

// Options converts the file settings into options. Pass them before any
// explicit option so the latter win.
func (c *FileConfig) Options() []Option {
	var opts []Option
	if c.Adapter != "" {
		opts = append(opts, WithAdapter(c.Adapter))
	}
	if c.Collection != "" {
		opts = append(opts, WithCollection(c.Collection))
	}
	if c.Extension != "" {
		opts = append(opts, WithExtension(c.Extension))
	}
	if c.EventBuffer > 0 {
		opts = append(opts, WithEventBuffer(c.EventBuffer))
	}
	if c.WriteTimeout > 0 {
		opts = append(opts, WithWriteTimeout(time.Duration(c.WriteTimeout)))
	}
	if c.RequestTimeout > 0 {
		opts = append(opts, WithRequestTimeout(time.Duration(c.RequestTimeout)))
	}
	if c.PollInterval > 0 {
		opts = append(opts, WithPollInterval(time.Duration(c.PollInterval)))
	}
	if c.Versioning != nil {
		opts = append(opts, WithVersioning(*c.Versioning))
	}
	if c.ReadOnly != nil {
		opts = append(opts, WithReadOnly(*c.ReadOnly))
	}
	return opts
}
