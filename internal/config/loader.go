package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads and parses configuration from a file. A directory path is
// resolved to config.yaml inside it.
func Load(configPath string) (*Config, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}
	if info.IsDir() {
		absPath = filepath.Join(absPath, "config.yaml")
		if _, err := os.Stat(absPath); err != nil {
			return nil, fmt.Errorf("directory provided but config.yaml not found: %s", absPath)
		}
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	// Apply environment variable interpolation before parsing.
	interpolated := interpolateEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(interpolated), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Discover finds the config file by checking standard locations.
// Priority order: $REFIT_CONFIG, ./.refit/config.yaml, ~/.config/refit.
// Returns defaults when nothing is found; refit is usable unconfigured.
func Discover() (*Config, string, error) {
	if path := os.Getenv("REFIT_CONFIG"); path != "" {
		cfg, err := Load(path)
		if err != nil {
			return nil, "", err
		}
		return cfg, path, nil
	}

	localPath := filepath.Join(".refit", "config.yaml")
	if _, err := os.Stat(localPath); err == nil {
		cfg, err := Load(localPath)
		if err != nil {
			return nil, "", err
		}
		return cfg, localPath, nil
	}

	if homeDir, err := os.UserHomeDir(); err == nil {
		userPath := filepath.Join(homeDir, ".config", "refit", "config.yaml")
		if _, err := os.Stat(userPath); err == nil {
			cfg, err := Load(userPath)
			if err != nil {
				return nil, "", err
			}
			return cfg, userPath, nil
		}
	}

	return Defaults(), "", nil
}

// applyDefaults merges default values into cfg where not explicitly set.
func applyDefaults(cfg *Config) {
	defaults := Defaults()

	if cfg.Service.Name == "" {
		cfg.Service.Name = defaults.Service.Name
	}
	if cfg.Service.LogLevel == "" {
		cfg.Service.LogLevel = defaults.Service.LogLevel
	}
	if cfg.Service.Parallelism <= 0 {
		cfg.Service.Parallelism = defaults.Service.Parallelism
	}
	if cfg.State.Path == "" {
		cfg.State.Path = defaults.State.Path
	}
	if cfg.Ledger.Path == "" {
		cfg.Ledger.Path = defaults.Ledger.Path
	}
	if cfg.Ledger.MemoryWindow <= 0 {
		cfg.Ledger.MemoryWindow = defaults.Ledger.MemoryWindow
	}
	if cfg.Locks.AcquireTimeout <= 0 {
		cfg.Locks.AcquireTimeout = defaults.Locks.AcquireTimeout
	}
	if cfg.Locks.BackupSuffix == "" {
		cfg.Locks.BackupSuffix = defaults.Locks.BackupSuffix
	}
	if cfg.Providers == nil {
		cfg.Providers = defaults.Providers
	} else {
		for name, def := range defaults.Providers {
			if _, ok := cfg.Providers[name]; !ok {
				cfg.Providers[name] = def
			}
		}
	}
	if cfg.Workers == nil {
		cfg.Workers = make(map[string]WorkerConf)
	}
	if cfg.Tasks.DefaultTask == "" {
		cfg.Tasks.DefaultTask = defaults.Tasks.DefaultTask
	}
	if cfg.Tasks.DefaultBudget <= 0 {
		cfg.Tasks.DefaultBudget = defaults.Tasks.DefaultBudget
	}
	if cfg.API.Listen == "" {
		cfg.API.Listen = defaults.API.Listen
	}
}

// validate performs basic validation on the configuration.
func validate(cfg *Config) error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[cfg.Service.LogLevel] {
		return fmt.Errorf("service.log_level must be one of: debug, info, warn, error (got %q)", cfg.Service.LogLevel)
	}

	if cfg.State.Path == "" {
		return fmt.Errorf("state.path is required")
	}
	if cfg.Ledger.Path == "" {
		return fmt.Errorf("ledger.path is required")
	}

	for name, p := range cfg.Providers {
		if p.QuotaPerMinute <= 0 {
			return fmt.Errorf("provider %q: quota_per_minute must be positive", name)
		}
		if p.QuotaPerHour <= 0 {
			return fmt.Errorf("provider %q: quota_per_hour must be positive", name)
		}
		if p.QuotaPerHour < p.QuotaPerMinute {
			return fmt.Errorf("provider %q: quota_per_hour must be >= quota_per_minute", name)
		}
		if p.DefaultCost < 0 {
			return fmt.Errorf("provider %q: default_cost must not be negative", name)
		}
		if p.MinSpacing < 0 {
			return fmt.Errorf("provider %q: min_spacing must not be negative", name)
		}
	}

	for name, w := range cfg.Workers {
		if w.CostModel == nil {
			continue
		}
		if w.CostModel.Base < 0 || w.CostModel.PerLine < 0 || w.CostModel.PerCallable < 0 ||
			w.CostModel.PerContainer < 0 || w.CostModel.CriticalBonus < 0 {
			return fmt.Errorf("worker %q: cost_model coefficients must not be negative", name)
		}
	}

	return nil
}

// interpolateEnv replaces ${VAR} with environment variable values.
// Undefined variables are left as-is (not expanded).
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		return match
	})
}
