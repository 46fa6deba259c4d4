package config

import (
	"sync"
)

// Handle holds the running configuration. Reload replaces the whole value;
// readers get a copy and never see a partial update.
type Handle struct {
	lk   sync.RWMutex
	cfg  *Config
	path string
}

func NewHandle(cfg *Config, path string) *Handle {
	return &Handle{cfg: cfg, path: path}
}

// Load reads path (or DefaultConfigFile when path is empty) into a new
// Handle. An explicitly named file must exist.
func Load(path string) (*Handle, error) {
	var opts []LoadOpt
	if path == "" {
		path = DefaultConfigFile
	} else {
		opts = append(opts, Required())
	}

	cfg, err := FromFile(path, opts...)
	if err != nil {
		return nil, err
	}
	return NewHandle(cfg, path), nil
}

func (h *Handle) Get() Config {
	h.lk.RLock()
	defer h.lk.RUnlock()

	c := *h.cfg
	c.Logging.SubsystemLevels = make(map[string]string, len(h.cfg.Logging.SubsystemLevels))
	for k, v := range h.cfg.Logging.SubsystemLevels {
		c.Logging.SubsystemLevels[k] = v
	}
	return c
}

// Reload parses the file the handle was loaded from and swaps it in. On
// error the current value is kept.
func (h *Handle) Reload() error {
	cfg, err := FromFile(h.path, Required())
	if err != nil {
		return err
	}

	h.lk.Lock()
	h.cfg = cfg
	h.lk.Unlock()

	log.Infow("configuration reloaded", "path", h.path)
	return nil
}
