package tstdb

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tailscale/hujson"
)

// Config holds the settings a Store is opened with.
type Config struct {
	Path         string
	MaxKeyLen    int
	Separator    byte
	AdvisoryLock bool
}

// fileConfig is the on-disk shape of a config file. AdvisoryLock is a
// pointer so an explicit `false` in the file can be told apart from the
// field being absent, which a plain bool can't do.
type fileConfig struct {
	Path         string `json:"path,omitempty"`
	MaxKeyLen    int    `json:"max_key_len,omitempty"`   //nolint:tagliatelle // snake_case for config file
	Separator    byte   `json:"separator,omitempty"`     //nolint:tagliatelle // snake_case for config file
	AdvisoryLock *bool  `json:"advisory_lock,omitempty"` //nolint:tagliatelle // snake_case for config file
}

// ConfigSources tracks which config files were loaded.
type ConfigSources struct {
	Global  string
	Project string
}

// ConfigFileName is the default project-local config file name.
const ConfigFileName = ".tstdb.json"

// DefaultConfig returns the baseline configuration before any config file
// or CLI override is applied.
func DefaultConfig() Config {
	return Config{
		Path:         "tstdb.log",
		MaxKeyLen:    512,
		Separator:    '/',
		AdvisoryLock: true,
	}
}

var errMaxKeyLenTooLarge = fmt.Errorf("max_key_len cannot exceed the hard cap of %d", 512)

// getGlobalConfigPath returns the path to the global user config file,
// honoring $XDG_CONFIG_HOME before falling back to ~/.config.
func getGlobalConfigPath(env []string) string {
	for _, e := range env {
		if after, ok := strings.CutPrefix(e, "XDG_CONFIG_HOME="); ok {
			return filepath.Join(after, "tstdb", "config.json")
		}
	}

	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "tstdb", "config.json")
	}

	home, err := os.UserHomeDir()
	if err == nil {
		return filepath.Join(home, ".config", "tstdb", "config.json")
	}

	return ""
}

// LoadConfigInput gathers the inputs to LoadConfig.
type LoadConfigInput struct {
	WorkDir      string
	ConfigPath   string
	PathOverride string
	HasPathFlag  bool
	Env          []string
}

// LoadConfig loads configuration with the following precedence (highest
// wins): defaults, global user config, project config (or an explicit
// --config file), then CLI overrides.
func LoadConfig(in LoadConfigInput) (Config, ConfigSources, error) {
	cfg := DefaultConfig()

	var sources ConfigSources

	globalCfg, globalPath, err := loadGlobalConfig(in.Env)
	if err != nil {
		return Config{}, ConfigSources{}, err
	}

	sources.Global = globalPath
	cfg = mergeConfig(cfg, globalCfg)

	projectCfg, projectPath, err := loadProjectConfig(in.WorkDir, in.ConfigPath)
	if err != nil {
		return Config{}, ConfigSources{}, err
	}

	sources.Project = projectPath
	cfg = mergeConfig(cfg, projectCfg)

	if in.HasPathFlag {
		cfg.Path = in.PathOverride
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, ConfigSources{}, err
	}

	return cfg, sources, nil
}

func loadGlobalConfig(env []string) (fileConfig, string, error) {
	path := getGlobalConfigPath(env)
	if path == "" {
		return fileConfig{}, "", nil
	}

	cfg, loaded, err := loadConfigFile(path, false)
	if err != nil {
		return fileConfig{}, "", err
	}

	if !loaded {
		return fileConfig{}, "", nil
	}

	return cfg, path, nil
}

func loadProjectConfig(workDir, configPath string) (fileConfig, string, error) {
	var (
		cfgFile   string
		mustExist bool
	)

	if configPath != "" {
		cfgFile = configPath
		if !filepath.IsAbs(cfgFile) {
			cfgFile = filepath.Join(workDir, cfgFile)
		}

		mustExist = true

		if _, statErr := os.Stat(cfgFile); statErr != nil {
			return fileConfig{}, "", fmt.Errorf("%w: %s", errConfigFileNotFound, configPath)
		}
	} else {
		cfgFile = filepath.Join(workDir, ConfigFileName)
	}

	cfg, loaded, err := loadConfigFile(cfgFile, mustExist)
	if err != nil {
		return fileConfig{}, "", err
	}

	if !loaded {
		return fileConfig{}, "", nil
	}

	return cfg, cfgFile, nil
}

func loadConfigFile(path string, mustExist bool) (fileConfig, bool, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is intentionally user-controlled
	if err != nil {
		if os.IsNotExist(err) && !mustExist {
			return fileConfig{}, false, nil
		}

		if mustExist {
			return fileConfig{}, false, fmt.Errorf("%w: %s", errConfigFileRead, path)
		}

		return fileConfig{}, false, nil
	}

	cfg, err := parseConfig(data)
	if err != nil {
		return fileConfig{}, false, fmt.Errorf("%w %s: %w", errConfigInvalid, path, err)
	}

	return cfg, true, nil
}

func parseConfig(data []byte) (fileConfig, error) {
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return fileConfig{}, fmt.Errorf("invalid JSONC: %w", err)
	}

	var cfg fileConfig
	if err := json.Unmarshal(standardized, &cfg); err != nil {
		return fileConfig{}, fmt.Errorf("invalid JSON: %w", err)
	}

	return cfg, nil
}

func mergeConfig(base Config, overlay fileConfig) Config {
	if overlay.Path != "" {
		base.Path = overlay.Path
	}

	if overlay.MaxKeyLen != 0 {
		base.MaxKeyLen = overlay.MaxKeyLen
	}

	if overlay.Separator != 0 {
		base.Separator = overlay.Separator
	}

	if overlay.AdvisoryLock != nil {
		base.AdvisoryLock = *overlay.AdvisoryLock
	}

	return base
}

func validateConfig(cfg Config) error {
	if cfg.Path == "" {
		return errPathEmpty
	}

	if cfg.MaxKeyLen > 512 {
		return errMaxKeyLenTooLarge
	}

	return nil
}

// FormatConfig returns cfg as formatted JSON, for the print-config CLI
// command.
func FormatConfig(cfg Config) (string, error) {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to format config: %w", err)
	}

	return string(data), nil
}
