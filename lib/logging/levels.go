package logging

import (
	"os"

	logging "github.com/ipfs/go-log/v2"
	"golang.org/x/xerrors"
)

var log = logging.Logger("logging")

// SetupLogLevels sets the defaults for every subsystem. GOLOG_LOG_LEVEL
// overrides them.
func SetupLogLevels() {
	if _, set := os.LookupEnv("GOLOG_LOG_LEVEL"); set {
		return
	}
	_ = logging.SetLogLevel("*", "INFO")
	_ = logging.SetLogLevel("cborrpc", "WARN")
	_ = logging.SetLogLevel("metrics", "WARN")
}

// ApplyLevels sets per-subsystem levels, as configured under
// [Logging.SubsystemLevels].
func ApplyLevels(levels map[string]string) error {
	for sys, lvl := range levels {
		if err := logging.SetLogLevel(sys, lvl); err != nil {
			return xerrors.Errorf("setting log level of %q to %q: %w", sys, lvl, err)
		}
		log.Debugw("set log level", "subsystem", sys, "level", lvl)
	}
	return nil
}
