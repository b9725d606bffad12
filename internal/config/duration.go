package config

import (
	"fmt"
	"time"

	yaml "go.yaml.in/yaml/v3"
)

// Duration decodes YAML values like "30m", "1h30m" or a bare number of
// seconds into a time.Duration.
type Duration struct {
	D time.Duration
}

func (d Duration) String() string { return d.D.String() }

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw any
	if err := node.Decode(&raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case string:
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", v, err)
		}
		if parsed < 0 {
			return fmt.Errorf("duration %q must be >= 0", v)
		}
		d.D = parsed
		return nil
	case int:
		d.D = time.Duration(v) * time.Second
		return nil
	case float64:
		d.D = time.Duration(v * float64(time.Second))
		return nil
	default:
		return fmt.Errorf("invalid duration value %v", raw)
	}
}

func (d Duration) MarshalYAML() (any, error) { return d.D.String(), nil }
