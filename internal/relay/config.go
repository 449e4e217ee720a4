package relay

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// FeedConfig describes a captured WebSocket feed to relay.
type FeedConfig struct {
	Name         string   `yaml:"name"`
	URLPattern   string   `yaml:"url_pattern"`
	MessageTypes []string `yaml:"message_types,omitempty"`
	// TypeField is the gjson path of the message type in a JSON payload,
	// used with MessageTypes. Defaults to "type".
	TypeField string `yaml:"type_field,omitempty"`
	// Direction limits the feed to "sent" or "received" frames.
	Direction string `yaml:"direction,omitempty"`
}

// DefaultTypeField is the JSON field read when a feed sets no type_field.
const DefaultTypeField = "type"

// Config is the top-level YAML configuration.
type Config struct {
	Feeds []FeedConfig `yaml:"feeds"`
}

// LoadConfig reads and validates a relay YAML config file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("relay config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes and validates relay YAML.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("relay config: %w", err)
	}
	for i := range cfg.Feeds {
		f := &cfg.Feeds[i]
		if f.TypeField == "" {
			f.TypeField = DefaultTypeField
		}
		if f.Name == "" {
			return nil, fmt.Errorf("relay config: feed[%d] missing name", i)
		}
		if f.Name == FeedChanges {
			return nil, fmt.Errorf("relay config: feed[%d] uses reserved name %q", i, FeedChanges)
		}
		if f.URLPattern == "" {
			return nil, fmt.Errorf("relay config: feed[%d] (%s) missing url_pattern", i, f.Name)
		}
		switch f.Direction {
		case "", "sent", "received":
		default:
			return nil, fmt.Errorf("relay config: feed[%d] (%s) has invalid direction %q", i, f.Name, f.Direction)
		}
	}
	return &cfg, nil
}
