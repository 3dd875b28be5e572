// Package gconfig loads and validates the node's YAML configuration
// file: a Global section and a Gossip section, decoded with unknown
// fields rejected so a typo'd key aborts startup instead of being
// silently ignored.
package gconfig

import (
	"bytes"
	"fmt"
	"net"
	"os"
	"regexp"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is the top-level on-disk configuration shape.
type Config struct {
	Global Global `yaml:"Global"`
	Gossip Gossip `yaml:"Gossip"`
}

// Global holds settings outside the gossip protocol proper.
type Global struct {
	// Hostkey is a PEM file path, parsed and validated but unused by the
	// core: reserved for a future identity/signing feature, out of scope
	// for this node.
	Hostkey string `yaml:"Hostkey"`
}

// Gossip holds the node's protocol and networking settings.
type Gossip struct {
	CacheSize            int    `yaml:"CacheSize"`
	Degree               int    `yaml:"Degree"`
	Bootstrapper         string `yaml:"Bootstrapper"`
	P2PAddress           string `yaml:"P2PAddress"`
	APIAddress           string `yaml:"APIAddress"`
	ChallengeTimeout     int    `yaml:"ChallengeTimeout"`
	ChallengeDifficulty  int    `yaml:"ChallengeDifficulty"`
	DiscoveryCooldown    int    `yaml:"DiscoveryCooldown"`
}

var hostkeyRe = regexp.MustCompile(`^/?([^/]+/)*[^/]+\.pem$`)

// LoadFile reads and validates configPath, aborting before any
// listener binds on the first error.
func LoadFile(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("unable to read config: %w", err)
	}

	var cfg Config
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config YAML: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks each field's range and format.
func (c *Config) Validate() error {
	if c.Global.Hostkey != "" && !hostkeyRe.MatchString(c.Global.Hostkey) {
		return fmt.Errorf("Global.Hostkey: not a .pem file path: %q", c.Global.Hostkey)
	}

	if c.Gossip.CacheSize <= 0 {
		return fmt.Errorf("Gossip.CacheSize: must be positive, got %d", c.Gossip.CacheSize)
	}
	if c.Gossip.Degree <= 0 {
		return fmt.Errorf("Gossip.Degree: must be positive, got %d", c.Gossip.Degree)
	}
	if c.Gossip.Bootstrapper != "" {
		if err := validHostPort(c.Gossip.Bootstrapper); err != nil {
			return fmt.Errorf("Gossip.Bootstrapper: %w", err)
		}
	}
	if err := validHostPort(c.Gossip.P2PAddress); err != nil {
		return fmt.Errorf("Gossip.P2PAddress: %w", err)
	}
	if err := validHostPort(c.Gossip.APIAddress); err != nil {
		return fmt.Errorf("Gossip.APIAddress: %w", err)
	}
	if c.Gossip.ChallengeTimeout <= 0 {
		return fmt.Errorf("Gossip.ChallengeTimeout: must be positive, got %d", c.Gossip.ChallengeTimeout)
	}
	if c.Gossip.ChallengeDifficulty < 0 || c.Gossip.ChallengeDifficulty > 64 {
		return fmt.Errorf("Gossip.ChallengeDifficulty: must be in [0,64], got %d", c.Gossip.ChallengeDifficulty)
	}
	if c.Gossip.DiscoveryCooldown <= 0 {
		return fmt.Errorf("Gossip.DiscoveryCooldown: must be positive, got %d", c.Gossip.DiscoveryCooldown)
	}
	return nil
}

func validHostPort(s string) error {
	host, portStr, err := net.SplitHostPort(s)
	if err != nil || host == "" {
		return fmt.Errorf("not a host:port pair: %q", s)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 0 || port > 65535 {
		return fmt.Errorf("not a host:port pair: %q", s)
	}
	return nil
}
