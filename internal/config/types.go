package config

import "time"

// Config represents the complete refit configuration.
type Config struct {
	Service   ServiceConfig           `yaml:"service"`
	State     StateConfig             `yaml:"state"`
	Ledger    LedgerConfig            `yaml:"ledger"`
	Locks     LocksConfig             `yaml:"locks"`
	Providers map[string]ProviderConf `yaml:"providers"`
	Workers   map[string]WorkerConf   `yaml:"workers,omitempty"`
	Tasks     TasksConfig             `yaml:"tasks"`
	API       APIConfig               `yaml:"api,omitempty"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name        string `yaml:"name"`
	LogLevel    string `yaml:"log_level"`
	Parallelism int    `yaml:"parallelism"`
}

// StateConfig defines the SQLite journal location.
type StateConfig struct {
	Path string `yaml:"path"`
}

// LedgerConfig defines consumption ledger persistence settings.
type LedgerConfig struct {
	Path string `yaml:"path"`
	// MemoryWindow bounds how many records are retained in memory.
	// The persisted file may retain more for cross-run estimation.
	MemoryWindow int `yaml:"memory_window"`
}

// LocksConfig defines file lock behavior.
type LocksConfig struct {
	AcquireTimeout time.Duration `yaml:"acquire_timeout"`
	BackupSuffix   string        `yaml:"backup_suffix"`
}

// ProviderConf defines the quota and pacing profile for one provider.
type ProviderConf struct {
	// QuotaPerMinute and QuotaPerHour are sliding-window cost budgets.
	QuotaPerMinute float64 `yaml:"quota_per_minute"`
	QuotaPerHour   float64 `yaml:"quota_per_hour"`
	// DefaultCost is the conservative estimate used before any history exists.
	DefaultCost float64 `yaml:"default_cost"`
	// MinSpacing is the inter-operation floor applied even when no quota is at risk.
	MinSpacing time.Duration `yaml:"min_spacing"`
}

// WorkerConf overrides per-worker behavior. Zero-valued fields keep the
// registry defaults.
type WorkerConf struct {
	Enabled   *bool            `yaml:"enabled,omitempty"`
	CostModel *CostModelConfig `yaml:"cost_model,omitempty"`
}

// CostModelConfig overrides a worker's estimation coefficients.
type CostModelConfig struct {
	Base          float64 `yaml:"base"`
	PerLine       float64 `yaml:"per_line"`
	PerCallable   float64 `yaml:"per_callable"`
	PerContainer  float64 `yaml:"per_container"`
	CriticalBonus float64 `yaml:"critical_bonus"`
}

// TasksConfig defines run defaults.
type TasksConfig struct {
	DefaultTask   string  `yaml:"default_task"`
	DefaultBudget float64 `yaml:"default_budget"`
}

// APIConfig defines the optional status API server.
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:        "refit",
			LogLevel:    "info",
			Parallelism: 4,
		},
		State: StateConfig{
			Path: ".refit/state.db",
		},
		Ledger: LedgerConfig{
			Path:         ".refit/ledger.json",
			MemoryWindow: 200,
		},
		Locks: LocksConfig{
			AcquireTimeout: 10 * time.Second,
			BackupSuffix:   ".refit-backup",
		},
		Providers: map[string]ProviderConf{
			"standard": {
				QuotaPerMinute: 60,
				QuotaPerHour:   1200,
				DefaultCost:    8,
				MinSpacing:     250 * time.Millisecond,
			},
			"premium": {
				QuotaPerMinute: 20,
				QuotaPerHour:   400,
				DefaultCost:    20,
				MinSpacing:     time.Second,
			},
		},
		Workers: make(map[string]WorkerConf),
		Tasks: TasksConfig{
			DefaultTask:   "cleanup",
			DefaultBudget: 200,
		},
		API: APIConfig{
			Enabled: false,
			Listen:  "127.0.0.1:8521",
		},
	}
}
