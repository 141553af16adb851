// Package config loads imploid's JSON configuration from
// ~/.imploid/config.json per spec.md §3.3 / §6, replacing bb's
// fleet-composition config.go with the scheduler's Config shape while
// keeping the same "read once, treat as read-only" contract.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/misty-step/imploid/internal/imperrors"
	"github.com/misty-step/imploid/internal/model"
)

// DefaultDirName is the directory under the user's home holding all
// persisted imploid state (spec.md §6 persisted state layout).
const DefaultDirName = ".imploid"

// Dir returns the imploid config directory, honoring an explicit override.
func Dir(override string) (string, error) {
	if override != "" {
		return expandHome(override), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", &imperrors.ConfigError{Message: "cannot resolve home directory: " + err.Error()}
	}
	return filepath.Join(home, DefaultDirName), nil
}

// Path returns the config file path within dir.
func Path(dir string) string {
	return filepath.Join(dir, "config.json")
}

// Load reads and validates the config file at path.
func Load(path string) (model.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return model.Config{}, &imperrors.ConfigError{Message: "no config file at " + path + "; create it by hand"}
		}
		return model.Config{}, &imperrors.ConfigError{Message: err.Error()}
	}

	var cfg model.Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return model.Config{}, &imperrors.ConfigError{Message: "parsing " + path + ": " + err.Error()}
	}

	if err := validate(&cfg); err != nil {
		return model.Config{}, err
	}
	expandPaths(&cfg)
	return cfg, nil
}

func validate(cfg *model.Config) error {
	if strings.TrimSpace(cfg.GitHub.Token) == "" {
		return &imperrors.ConfigError{Field: "github.token", Message: "required"}
	}
	if len(cfg.GitHub.Repos) == 0 {
		return &imperrors.ConfigError{Field: "github.repos", Message: "at least one repo is required"}
	}
	if cfg.GitHub.MaxConcurrent <= 0 {
		cfg.GitHub.MaxConcurrent = model.DefaultMaxConcurrent
	}
	if len(cfg.ProcessorsEnabled) == 0 {
		return &imperrors.ConfigError{Field: "processors_enabled", Message: "at least one processor must be enabled"}
	}
	for _, p := range cfg.ProcessorsEnabled {
		if !p.IsKnown() {
			return &imperrors.ConfigError{Field: "processors_enabled", Message: "unknown processor " + string(p)}
		}
		if _, ok := cfg.Processors[p]; !ok {
			return &imperrors.ConfigError{Field: "processors", Message: "missing settings for enabled processor " + string(p)}
		}
	}
	return nil
}

// expandPaths resolves ~/ prefixes in repo base paths and prompt paths.
func expandPaths(cfg *model.Config) {
	for i, repo := range cfg.GitHub.Repos {
		cfg.GitHub.Repos[i].BaseRepoPath = expandHome(repo.BaseRepoPath)
	}
	for name, pc := range cfg.Processors {
		pc.Path = expandHome(pc.Path)
		pc.PromptPath = expandHome(pc.PromptPath)
		cfg.Processors[name] = pc
	}
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}
