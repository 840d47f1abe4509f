package config

// CacheConfig configures internal/cache's LRU+size+TTL file content cache.
type CacheConfig struct {
	MaxSizeBytes   int64 `yaml:"max_size_bytes" json:"max_size_bytes,omitempty"`
	MaxEntries     int   `yaml:"max_entries" json:"max_entries,omitempty"`
	TTLMs          int64 `yaml:"ttl_ms" json:"ttl_ms,omitempty"`
	EnableWatching bool  `yaml:"enable_watching" json:"enable_watching,omitempty"`
}
