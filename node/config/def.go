package config

import (
	"net"
	"strconv"
	"time"
)

// DefaultConfigFile is read from the working directory when no --config
// flag is given. It is optional.
const DefaultConfigFile = "filbase.config.toml"

const DefaultPort = 9988

func Default() *Config {
	return &Config{
		Host: "127.0.0.1",
		Port: DefaultPort,

		PoRepPartitions: 1,
		PoStPartitions:  2,

		MetadataDir:     "meta",
		SealedSectorDir: "sealed",
		StagedSectorDir: "staged",

		MaxNumStagedSectors: 10,

		Client: Client{
			DialTimeout:  Duration(5 * time.Second),
			DialAttempts: 3,
		},
		Logging: Logging{
			SubsystemLevels: map[string]string{},
		},
	}
}

// Addr is the host:port the daemon listens on.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(int(c.Port)))
}

// Duration is a wrapper type for time.Duration
// for decoding and encoding from/to TOML
type Duration time.Duration

// UnmarshalText implements interface for TOML decoding
func (dur *Duration) UnmarshalText(text []byte) error {
	d, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*dur = Duration(d)
	return err
}

func (dur Duration) MarshalText() ([]byte, error) {
	d := time.Duration(dur)
	return []byte(d.String()), nil
}
