// Package config loads the agent's YAML configuration file and watches it
// for changes, publishing immutable snapshots the engine consumes.
package config

import (
	"crypto/sha256"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mcastellin/uptime-gossip/internal/cryptobox"
	"github.com/mcastellin/uptime-gossip/internal/probe"
)

// UI configures the embedded read-only dashboard and HTTP/JSON API.
type UI struct {
	Enabled bool     `yaml:"enabled"`
	Listen  string   `yaml:"listen"`
	Title   string   `yaml:"title"`
	Logo    string   `yaml:"logo"`
	Notices []string `yaml:"notices"`
	Links   []Link   `yaml:"links"`
}

// Link is one entry in the dashboard's link list.
type Link struct {
	Title string `yaml:"title"`
	URL   string `yaml:"url"`
}

// Cluster configures gossip membership, encryption, and garbage collection.
type Cluster struct {
	Enabled        bool          `yaml:"enabled"`
	Listen         string        `yaml:"listen"`
	Peers          []string      `yaml:"peers"`
	GossipInterval time.Duration `yaml:"gossip_interval"`
	GossipFactor   int           `yaml:"gossip_factor"`
	GCInterval     time.Duration `yaml:"gc_interval"`
	GCPeerExpiry   time.Duration `yaml:"gc_peer_expiry"`
	GCProbeExpiry  time.Duration `yaml:"gc_probe_expiry"`
	SecretKey      string        `yaml:"secret_key"`
}

// Key derives the 256-bit AEAD key from the configured secret string.
// Hashing accepts a secret of any length rather than forcing operators to
// paste raw key bytes into YAML.
func (c Cluster) Key() cryptobox.Key {
	return cryptobox.Key(sha256.Sum256([]byte(c.SecretKey)))
}

// Config is one fully-loaded, immutable configuration snapshot.
type Config struct {
	Probes  []probe.Descriptor `yaml:"probes"`
	UI      UI                 `yaml:"ui"`
	Cluster Cluster            `yaml:"cluster"`
	State   string             `yaml:"state"`
}

// Load reads and parses the YAML configuration file at path.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: reading %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	for i, p := range cfg.Probes {
		cfg.Probes[i].Validators = resolveExpectations(p.Validators)
	}
	return cfg, nil
}

// resolveExpectations fills in each ValidatorKind's Expect from the raw YAML
// scalar the config file carries under "expect". Map values aren't
// addressable, so this rebuilds the map rather than mutating in place.
func resolveExpectations(validators map[string]probe.ValidatorKind) map[string]probe.ValidatorKind {
	if validators == nil {
		return nil
	}
	out := make(map[string]probe.ValidatorKind, len(validators))
	for field, kind := range validators {
		kind.Expect = probe.StringValue(kind.RawExpect)
		out[field] = kind
	}
	return out
}
