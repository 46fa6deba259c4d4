package config

// Config is the daemon and client configuration. Top level keys keep the
// names used by earlier releases of the config file.
type Config struct {
	Host string `toml:"host"`
	Port uint16 `toml:"port"`

	PoRepPartitions uint8 `toml:"porep_partitions"`
	PoStPartitions  uint8 `toml:"post_partitions"`

	MetadataDir     string `toml:"metadata_dir"`
	SealedSectorDir string `toml:"sealed_sector_dir"`
	StagedSectorDir string `toml:"staged_sector_dir"`

	MaxNumStagedSectors uint8 `toml:"max_num_staged_sectors"`

	Client  Client
	Metrics Metrics
	Logging Logging
}

// Client configures how cli commands reach the daemon.
type Client struct {
	// DialTimeout bounds a single connection attempt.
	DialTimeout Duration
	// DialAttempts is the number of connection attempts before giving up.
	DialAttempts int
}

type Metrics struct {
	// ListenAddress serves /debug/metrics and /health/livez when set.
	ListenAddress string
}

type Logging struct {
	// SubsystemLevels specify per-subsystem log levels
	SubsystemLevels map[string]string
}
