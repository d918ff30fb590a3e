package server

import (
	"fmt"
	"os"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
)

// Config is the complete server configuration.
type Config struct {
	Server ServerSettings `hcl:"server,block"`
	Tables []TableConfig  `hcl:"table,block"`
}

// ServerSettings contains server-level configuration.
type ServerSettings struct {
	Address        string `hcl:"address,optional"`
	Port           int    `hcl:"port,optional"`
	MetricsPort    int    `hcl:"metrics_port,optional"`
	LogLevel       string `hcl:"log_level,optional"`
	TurnBudgetSecs int    `hcl:"turn_budget_seconds,optional"`
	// ArchiveDSN is the postgres DSN for the durable event archive.
	// Empty disables archiving; the in-memory log still works.
	ArchiveDSN string `hcl:"archive_dsn,optional"`
	// AuthURL is the token validation callback. Empty disables auth and
	// players connect under any name they claim.
	AuthURL         string `hcl:"auth_url,optional"`
	AuthAdminSecret string `hcl:"auth_admin_secret,optional"`
}

// TableConfig defines one table opened at startup.
type TableConfig struct {
	Name       string `hcl:"name,label"`
	MaxPlayers int    `hcl:"max_players,optional"`
	SmallBlind int    `hcl:"small_blind"`
	BigBlind   int    `hcl:"big_blind"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerSettings{
			Address:        "localhost",
			Port:           8080,
			MetricsPort:    9090,
			LogLevel:       "info",
			TurnBudgetSecs: 30,
		},
		Tables: []TableConfig{
			{
				Name:       "main",
				MaxPlayers: 6,
				SmallBlind: 1,
				BigBlind:   2,
			},
		},
	}
}

// LoadConfig loads configuration from an HCL file, filling defaults for
// anything unset.
func LoadConfig(filename string) (*Config, error) {
	if _, err := os.Stat(filename); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", filename)
	}

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("parse config: %s", diags.Error())
	}

	config := &Config{}
	if diags := gohcl.DecodeBody(file.Body, nil, config); diags.HasErrors() {
		return nil, fmt.Errorf("decode config: %s", diags.Error())
	}

	defaults := DefaultConfig()
	if config.Server.Address == "" {
		config.Server.Address = defaults.Server.Address
	}
	if config.Server.Port == 0 {
		config.Server.Port = defaults.Server.Port
	}
	if config.Server.MetricsPort == 0 {
		config.Server.MetricsPort = defaults.Server.MetricsPort
	}
	if config.Server.LogLevel == "" {
		config.Server.LogLevel = defaults.Server.LogLevel
	}
	if config.Server.TurnBudgetSecs == 0 {
		config.Server.TurnBudgetSecs = defaults.Server.TurnBudgetSecs
	}
	for i := range config.Tables {
		if config.Tables[i].MaxPlayers == 0 {
			config.Tables[i].MaxPlayers = 6
		}
	}
	return config, nil
}

// Validate checks the configuration for obvious mistakes.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}
	if c.Server.TurnBudgetSecs <= 0 {
		return fmt.Errorf("turn budget must be positive, got %d", c.Server.TurnBudgetSecs)
	}
	for _, t := range c.Tables {
		if t.SmallBlind <= 0 || t.BigBlind <= t.SmallBlind {
			return fmt.Errorf("table %s: blinds %d/%d invalid", t.Name, t.SmallBlind, t.BigBlind)
		}
		if t.MaxPlayers < 2 || t.MaxPlayers > 10 {
			return fmt.Errorf("table %s: max_players %d out of range", t.Name, t.MaxPlayers)
		}
	}
	return nil
}
