// Package subnets reads and writes the channel-to-subnet configuration
// file shared by the exporter, the importer and the discovery tool.
package subnets

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/madofuller/discordscraper/internal/security"
)

// Entry maps one channel to its subnet tag.
type Entry struct {
	Name        string   `yaml:"name"`
	ChannelID   string   `yaml:"channel_id"`
	Description string   `yaml:"description,omitempty"`
	Tags        []string `yaml:"tags,omitempty"`
}

type file struct {
	Subnets []Entry `yaml:"subnets"`
}

// Load reads the subnet configuration. A missing file is an empty list so
// the pipeline works before discovery has ever run.
func Load(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read subnets config: %w", err)
	}

	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse subnets config: %w", err)
	}
	return f.Subnets, nil
}

func Save(path string, entries []Entry) error {
	data, err := yaml.Marshal(file{Subnets: entries})
	if err != nil {
		return fmt.Errorf("marshal subnets config: %w", err)
	}
	header := []byte("# Subnet configuration, one entry per monitored channel.\n# Regenerate with the discover command.\n\n")
	if err := os.WriteFile(path, append(header, data...), 0o644); err != nil {
		return fmt.Errorf("write subnets config: %w", err)
	}
	return nil
}

// Mapping converts entries to a channel-id keyed lookup, dropping entries
// whose channel id is not a valid snowflake.
func Mapping(entries []Entry) map[int64]string {
	m := make(map[int64]string, len(entries))
	for _, e := range entries {
		id, err := security.ParseSnowflake(e.ChannelID)
		if err != nil {
			continue
		}
		m[id] = e.Name
	}
	return m
}
