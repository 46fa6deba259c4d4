package config

import (
	"bytes"
	"io"
	"os"

	"github.com/BurntSushi/toml"
	logging "github.com/ipfs/go-log/v2"
	"github.com/mitchellh/go-homedir"
	"golang.org/x/xerrors"
)

var log = logging.Logger("config")

type loadOpts struct {
	required bool
}

type LoadOpt func(*loadOpts)

// Required makes a missing file an error instead of yielding the defaults.
func Required() LoadOpt {
	return func(o *loadOpts) {
		o.required = true
	}
}

// FromFile loads config from a toml file, decoded over Default().
func FromFile(path string, opts ...LoadOpt) (*Config, error) {
	var o loadOpts
	for _, opt := range opts {
		opt(&o)
	}

	path, err := homedir.Expand(path)
	if err != nil {
		return nil, xerrors.Errorf("expanding config path: %w", err)
	}

	file, err := os.Open(path)
	switch {
	case os.IsNotExist(err):
		if o.required {
			return nil, xerrors.Errorf("couldn't load config: %w", err)
		}
		log.Debugw("config file not found, using defaults", "path", path)
		return Default(), nil
	case err != nil:
		return nil, err
	}

	defer file.Close() //nolint:errcheck // The file is RO
	cfg, err := FromReader(file, Default())
	if err != nil {
		return nil, xerrors.Errorf("loading config %s: %w", path, err)
	}
	return cfg, nil
}

// FromReader decodes toml from reader on top of def.
func FromReader(reader io.Reader, def *Config) (*Config, error) {
	cfg := def
	md, err := toml.NewDecoder(reader).Decode(cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, xerrors.Errorf("unknown config keys: %v", undecoded)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch {
	case c.Host == "":
		return xerrors.New("host must be set")
	case c.Port == 0:
		return xerrors.New("port must be set")
	case c.MaxNumStagedSectors == 0:
		return xerrors.New("max_num_staged_sectors must be positive")
	case c.MetadataDir == "" || c.SealedSectorDir == "" || c.StagedSectorDir == "":
		return xerrors.New("metadata_dir, sealed_sector_dir and staged_sector_dir must be set")
	case c.Client.DialAttempts < 1:
		return xerrors.New("Client.DialAttempts must be at least 1")
	}
	return nil
}

// ExpandPaths resolves ~ in the directory settings.
func (c *Config) ExpandPaths() error {
	for _, p := range []*string{&c.MetadataDir, &c.SealedSectorDir, &c.StagedSectorDir} {
		exp, err := homedir.Expand(*p)
		if err != nil {
			return xerrors.Errorf("expanding %s: %w", *p, err)
		}
		*p = exp
	}
	return nil
}

// ConfigComment encodes cfg as commented toml, the form `config default`
// prints.
func ConfigComment(cfg *Config) ([]byte, error) {
	buf := new(bytes.Buffer)
	_, _ = buf.WriteString("# Default config:\n")
	e := toml.NewEncoder(buf)
	if err := e.Encode(cfg); err != nil {
		return nil, xerrors.Errorf("encoding config: %w", err)
	}
	return buf.Bytes(), nil
}
