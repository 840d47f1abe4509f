package config

// TransactionConfig configures internal/transaction's snapshot budget and
// orphan sweep.
type TransactionConfig struct {
	MaxSnapshots    int    `yaml:"max_snapshots" json:"max_snapshots,omitempty"`
	SweepIntervalMs int64  `yaml:"sweep_interval_ms" json:"sweep_interval_ms,omitempty"`
	MaxAgeMs        int64  `yaml:"max_age_ms" json:"max_age_ms,omitempty"`
	Dir             string `yaml:"dir" json:"dir,omitempty"`
}
