package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"

	"github.com/vpn-linux/split-tunnel/internal/log"
)

// LoadConfig reads and parses the TOML configuration file at configPath.
func LoadConfig(configPath string) (*Config, error) {
	configFile := filepath.Clean(configPath)

	if !filepath.IsAbs(configFile) {
		if path, err := filepath.Abs(configFile); err != nil {
			return nil, fmt.Errorf("failed to get absolute path: %v", err)
		} else {
			configFile = path
		}
	}

	content, err := os.ReadFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %v", err)
	}

	var config Config
	if err := toml.Unmarshal(content, &config); err != nil {
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			log.Errorf(derr.String())
			row, col := derr.Position()
			log.Errorf("Error at line %d, column %d", row, col)
			return nil, fmt.Errorf("failed to parse config file")
		}
		return nil, fmt.Errorf("failed to parse config file: %v", err)
	}

	config.absConfigFilePath = configFile
	config.applyDefaults()

	log.Debugf("Configuration file path: %s", configFile)

	return &config, nil
}

// applyDefaults fills optional sections so the rest of the daemon never
// checks for nil.
func (c *Config) applyDefaults() {
	if c.Apps == nil {
		c.Apps = &AppsConfig{}
	}
	if c.API == nil {
		c.API = &APIConfig{
			Enable: true,
			Listen: "127.0.0.1:8090",
		}
	}
	if c.Firewall != nil && len(c.Firewall.MasqueradeRules) == 0 {
		c.Firewall.MasqueradeRules = []string{
			"-o {{interface}} -j MASQUERADE",
			"-o tun+ -j MASQUERADE",
		}
	}
}

// GetConfigDir returns the directory containing the loaded configuration file.
func (c *Config) GetConfigDir() string {
	return filepath.Dir(c.absConfigFilePath)
}
