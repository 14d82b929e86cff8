// Package config loads diskmap CLI configuration from JSONC files and flags.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/tailscale/hujson"
)

// FileName is the project config file looked up in the working directory.
const FileName = ".diskmap.json"

// Config holds all configuration options.
type Config struct {
	// From config files (serialized)
	Dir            string `json:"dir"`
	MemoryCapacity int    `json:"memory_capacity"`
	SlotCount      int    `json:"slot_count"`
	Preserve       bool   `json:"preserve"`
	LogLevel       string `json:"log_level"`

	// Resolved (computed, not serialized)
	EffectiveCwd string        `json:"-"` // Absolute working directory (from -C flag or os.Getwd)
	DirAbs       string        `json:"-"` // Absolute path to the storage directory
	Level        zerolog.Level `json:"-"`

	// Sources tracks which config files were loaded (for diagnostics)
	Sources Sources `json:"-"`
}

// Sources tracks which config files were loaded.
type Sources struct {
	Global  string // Path to global config if loaded, empty otherwise
	Project string // Path to project or explicit config if loaded, empty otherwise
}

// Default returns the default configuration: ten entries per tier and five
// slot files under .diskmap.
func Default() Config {
	return Config{
		Dir:            ".diskmap",
		MemoryCapacity: 10,
		SlotCount:      5,
		LogLevel:       "warn",
	}
}

// Overrides are CLI flag values. Nil fields were not set on the command line.
type Overrides struct {
	Dir            *string
	MemoryCapacity *int
	SlotCount      *int
	Preserve       *bool
	LogLevel       *string
}

// LoadInput holds the inputs for [Load].
type LoadInput struct {
	WorkDirOverride string            // -C/--cwd flag value; if empty, os.Getwd() is used
	ConfigPath      string            // -c/--config flag value
	Overrides       Overrides         // remaining global flags
	Env             map[string]string // environment variables
}

// fileConfig mirrors Config with optional fields so an absent key can be
// told apart from a zero value.
type fileConfig struct {
	Dir            *string `json:"dir"`
	MemoryCapacity *int    `json:"memory_capacity"`
	SlotCount      *int    `json:"slot_count"`
	Preserve       *bool   `json:"preserve"`
	LogLevel       *string `json:"log_level"`
}

// Load resolves configuration with the following precedence (highest wins):
// 1. Defaults
// 2. Global user config ($XDG_CONFIG_HOME/diskmap/config.json or ~/.config/diskmap/config.json)
// 3. Project config file (.diskmap.json), or the explicit --config file instead
// 4. CLI overrides.
//
// Paths in the returned Config are absolute.
func Load(input LoadInput) (Config, error) {
	workDir := input.WorkDirOverride
	if workDir == "" {
		var err error

		workDir, err = os.Getwd()
		if err != nil {
			return Config{}, fmt.Errorf("cannot get working directory: %w", err)
		}
	}

	if !filepath.IsAbs(workDir) {
		abs, err := filepath.Abs(workDir)
		if err != nil {
			return Config{}, fmt.Errorf("resolving working directory: %w", err)
		}

		workDir = abs
	}

	cfg := Default()

	if path := globalPath(input.Env); path != "" {
		fc, loaded, err := loadFile(path, false)
		if err != nil {
			return Config{}, err
		}

		if loaded {
			cfg = merge(cfg, fc)
			cfg.Sources.Global = path
		}
	}

	projectPath, mustExist := filepath.Join(workDir, FileName), false

	if input.ConfigPath != "" {
		projectPath, mustExist = input.ConfigPath, true
		if !filepath.IsAbs(projectPath) {
			projectPath = filepath.Join(workDir, projectPath)
		}
	}

	fc, loaded, err := loadFile(projectPath, mustExist)
	if err != nil {
		return Config{}, err
	}

	if loaded {
		cfg = merge(cfg, fc)
		cfg.Sources.Project = projectPath
	}

	cfg = merge(cfg, fileConfig(input.Overrides))

	cfg.Level, err = validate(cfg)
	if err != nil {
		return Config{}, err
	}

	cfg.EffectiveCwd = workDir

	cfg.DirAbs = cfg.Dir
	if !filepath.IsAbs(cfg.DirAbs) {
		cfg.DirAbs = filepath.Join(workDir, cfg.Dir)
	}

	return cfg, nil
}

// globalPath returns the global config path, or "" if neither
// XDG_CONFIG_HOME nor HOME is set.
func globalPath(env map[string]string) string {
	if xdg := env["XDG_CONFIG_HOME"]; xdg != "" {
		return filepath.Join(xdg, "diskmap", "config.json")
	}

	if home := env["HOME"]; home != "" {
		return filepath.Join(home, ".config", "diskmap", "config.json")
	}

	return ""
}

// loadFile reads and parses a config file. A missing optional file reports
// loaded=false.
func loadFile(path string, mustExist bool) (fileConfig, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		switch {
		case os.IsNotExist(err) && mustExist:
			return fileConfig{}, false, fmt.Errorf("%w: %s", ErrConfigFileNotFound, path)
		case os.IsNotExist(err):
			return fileConfig{}, false, nil
		default:
			return fileConfig{}, false, fmt.Errorf("%w %s: %w", ErrConfigFileRead, path, err)
		}
	}

	fc, err := parse(data)
	if err != nil {
		return fileConfig{}, false, fmt.Errorf("%w %s: %w", ErrConfigInvalid, path, err)
	}

	return fc, true, nil
}

func parse(data []byte) (fileConfig, error) {
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return fileConfig{}, fmt.Errorf("invalid JSONC: %w", err)
	}

	var fc fileConfig

	err = json.Unmarshal(standardized, &fc)
	if err != nil {
		return fileConfig{}, fmt.Errorf("invalid JSON: %w", err)
	}

	return fc, nil
}

func merge(base Config, overlay fileConfig) Config {
	if overlay.Dir != nil {
		base.Dir = *overlay.Dir
	}

	if overlay.MemoryCapacity != nil {
		base.MemoryCapacity = *overlay.MemoryCapacity
	}

	if overlay.SlotCount != nil {
		base.SlotCount = *overlay.SlotCount
	}

	if overlay.Preserve != nil {
		base.Preserve = *overlay.Preserve
	}

	if overlay.LogLevel != nil {
		base.LogLevel = *overlay.LogLevel
	}

	return base
}

func validate(cfg Config) (zerolog.Level, error) {
	if cfg.Dir == "" {
		return zerolog.NoLevel, ErrDirEmpty
	}

	if cfg.MemoryCapacity < 1 {
		return zerolog.NoLevel, fmt.Errorf("memory_capacity: %w, got %d", ErrCapacityInvalid, cfg.MemoryCapacity)
	}

	if cfg.SlotCount < 1 {
		return zerolog.NoLevel, fmt.Errorf("slot_count: %w, got %d", ErrCapacityInvalid, cfg.SlotCount)
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("%w %q: %w", ErrLogLevelInvalid, cfg.LogLevel, err)
	}

	return level, nil
}

// Format renders the serializable fields as indented JSON.
func Format(cfg Config) (string, error) {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return "", fmt.Errorf("formatting config: %w", err)
	}

	return string(data), nil
}
