// Package config loads TOML configuration for the watchtower and party
// binaries.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	// DefaultHeartbeatInterval is the party's send cadence
	DefaultHeartbeatInterval = 5 * time.Second

	// DefaultAttemptTimeout bounds one heartbeat exchange
	DefaultAttemptTimeout = 3 * time.Second

	// Default sweep thresholds, derived from the heartbeat interval:
	// two missed intervals suspect a party, four declare it dead.
	DefaultSuspectAfter = 2 * DefaultHeartbeatInterval
	DefaultDeadAfter    = 4 * DefaultHeartbeatInterval
)

// Duration wraps time.Duration for TOML decoding of strings like "5s"
type Duration struct {
	time.Duration
}

// UnmarshalText implements toml text unmarshalling
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// WatchtowerConfig configures the watchtower binary
type WatchtowerConfig struct {
	// BindAddr is the protocol TCP listen address
	BindAddr string `toml:"bind_addr"`

	// AdminAddr is the HTTP listen address for metrics and inspection
	AdminAddr string `toml:"admin_addr"`

	// Epoch the watchtower serves
	Epoch uint64 `toml:"epoch"`

	// KeyFile holds the watchtower's signing key
	KeyFile string `toml:"key_file"`

	// RosterFile holds the registered party public keys
	RosterFile string `toml:"roster_file"`

	// DBPath is the accepted-heartbeat log database file
	DBPath string `toml:"db_path"`

	// SuspectAfter and DeadAfter are the liveness recency thresholds
	SuspectAfter Duration `toml:"suspect_after"`
	DeadAfter    Duration `toml:"dead_after"`

	// SweepInterval overrides the sweep cadence; zero derives it
	SweepInterval Duration `toml:"sweep_interval"`

	// AllowProvisioning lets roster parties self-provision records on
	// first valid contact instead of being pre-registered
	AllowProvisioning bool `toml:"allow_provisioning"`
}

// DefaultWatchtowerConfig returns a watchtower config with defaults
func DefaultWatchtowerConfig() WatchtowerConfig {
	return WatchtowerConfig{
		BindAddr:     ":7420",
		AdminAddr:    ":7421",
		KeyFile:      "watchtower_key.json",
		RosterFile:   "roster.json",
		DBPath:       "heartbeats.db",
		SuspectAfter: Duration{DefaultSuspectAfter},
		DeadAfter:    Duration{DefaultDeadAfter},
	}
}

// ValidateBasic checks the config for structural problems
func (cfg *WatchtowerConfig) ValidateBasic() error {
	if cfg.BindAddr == "" {
		return errors.New("watchtower config: bind_addr is required")
	}
	if cfg.KeyFile == "" {
		return errors.New("watchtower config: key_file is required")
	}
	if cfg.RosterFile == "" {
		return errors.New("watchtower config: roster_file is required")
	}
	if cfg.SuspectAfter.Duration <= 0 {
		return errors.New("watchtower config: suspect_after must be positive")
	}
	if cfg.DeadAfter.Duration <= cfg.SuspectAfter.Duration {
		return errors.New("watchtower config: dead_after must exceed suspect_after")
	}
	return nil
}

// PartyConfig configures the party binary
type PartyConfig struct {
	// WatchtowerAddr is the watchtower's protocol TCP address
	WatchtowerAddr string `toml:"watchtower_addr"`

	// Epoch this party participates in
	Epoch uint64 `toml:"epoch"`

	// PartyID is this party's registered id
	PartyID uint64 `toml:"party_id"`

	// Interval between heartbeats
	Interval Duration `toml:"interval"`

	// Timeout bounds one heartbeat exchange
	Timeout Duration `toml:"timeout"`

	// KeyFile holds the party's signing key
	KeyFile string `toml:"key_file"`

	// StateFile persists acknowledged progress
	StateFile string `toml:"state_file"`
}

// DefaultPartyConfig returns a party config with defaults
func DefaultPartyConfig() PartyConfig {
	return PartyConfig{
		WatchtowerAddr: "127.0.0.1:7420",
		Interval:       Duration{DefaultHeartbeatInterval},
		Timeout:        Duration{DefaultAttemptTimeout},
		KeyFile:        "party_key.json",
		StateFile:      "party_state.json",
	}
}

// ValidateBasic checks the config for structural problems
func (cfg *PartyConfig) ValidateBasic() error {
	if cfg.WatchtowerAddr == "" {
		return errors.New("party config: watchtower_addr is required")
	}
	if cfg.Interval.Duration <= 0 {
		return errors.New("party config: interval must be positive")
	}
	if cfg.Timeout.Duration <= 0 {
		return errors.New("party config: timeout must be positive")
	}
	if cfg.KeyFile == "" {
		return errors.New("party config: key_file is required")
	}
	if cfg.StateFile == "" {
		return errors.New("party config: state_file is required")
	}
	return nil
}

// LoadWatchtowerConfig reads and validates a watchtower TOML file.
// Fields absent from the file keep their defaults.
func LoadWatchtowerConfig(path string) (WatchtowerConfig, error) {
	cfg := DefaultWatchtowerConfig()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return WatchtowerConfig{}, fmt.Errorf("failed to load config %s: %w", path, err)
	}
	if err := cfg.ValidateBasic(); err != nil {
		return WatchtowerConfig{}, err
	}
	return cfg, nil
}

// LoadPartyConfig reads and validates a party TOML file
func LoadPartyConfig(path string) (PartyConfig, error) {
	cfg := DefaultPartyConfig()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return PartyConfig{}, fmt.Errorf("failed to load config %s: %w", path, err)
	}
	if err := cfg.ValidateBasic(); err != nil {
		return PartyConfig{}, err
	}
	return cfg, nil
}
