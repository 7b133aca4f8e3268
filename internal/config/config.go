// Package config loads the otprobe user configuration file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v2"
)

const (
	configDir  string = "opentraceprobe"
	configFile string = "config.yml"

	// DefaultSpeedKHz is the probe clock used when neither the file nor the
	// command line sets one.
	DefaultSpeedKHz = 1000
)

// Config defines all configuration options available to be set through the
// config file.
type Config struct {
	// Probe selects a probe by serial number. Empty picks the first probe.
	Probe string `yaml:"probe,omitempty"`
	// Protocol is "swd" or "jtag".
	Protocol string `yaml:"protocol,omitempty"`
	SpeedKHz int    `yaml:"speed-khz,omitempty"`

	// Chip is a target name, or "auto" to identify the chip.
	Chip              string `yaml:"chip,omitempty"`
	ConnectUnderReset bool   `yaml:"connect-under-reset"`

	// TargetDirs are searched for extra chip family descriptions.
	TargetDirs []string `yaml:"target-dirs,omitempty"`

	// LogOutput is a comma separated list of log layers enabled by --log.
	LogOutput string `yaml:"log-output,omitempty"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{Protocol: "swd", SpeedKHz: DefaultSpeedKHz, Chip: "auto"}
}

// Load reads the config file at path. A missing file yields Default.
// Fields the file leaves empty keep their default values.
func Load(path string) (*Config, error) {
	c := Default()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := yaml.UnmarshalStrict(data, c); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	if c.SpeedKHz <= 0 {
		return nil, fmt.Errorf("config: %s: speed-khz must be positive", path)
	}
	return c, nil
}

// LoadDefault reads the config file from the per-user config directory.
func LoadDefault() (*Config, error) {
	path, err := GetConfigFilePath(configFile)
	if err != nil {
		return nil, err
	}
	return Load(path)
}

// Save writes c to path, creating its directory.
func Save(path string, c *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	out, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, out, 0600)
}

// GetConfigFilePath gets the full path to the given config file name.
func GetConfigFilePath(file string) (string, error) {
	if runtime.GOOS == "windows" {
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, configDir, file), nil
		}
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, configDir, file), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("config: locate home directory: %w", err)
	}
	return filepath.Join(home, ".config", configDir, file), nil
}
