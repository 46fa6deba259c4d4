package repo

import (
	"errors"
	"io"
	"os"
	"path/filepath"

	"github.com/ipfs/go-datastore"
	levelds "github.com/ipfs/go-ds-leveldb"
	measure "github.com/ipfs/go-ds-measure"
	fslock "github.com/ipfs/go-fs-lock"
	logging "github.com/ipfs/go-log/v2"
	"github.com/mitchellh/go-homedir"
	ldbopts "github.com/syndtr/goleveldb/leveldb/opt"
	"go.uber.org/multierr"
	"golang.org/x/xerrors"
)

var log = logging.Logger("repo")

const (
	fsDatastore = "datastore"
	fsLock      = "repo.lock"
)

var ErrRepoAlreadyLocked = errors.New("repo is already locked (filbase daemon already running)")

// FsRepo is the metadata directory of a daemon.
type FsRepo struct {
	path string
}

func NewFS(path string) (*FsRepo, error) {
	path, err := homedir.Expand(path)
	if err != nil {
		return nil, err
	}

	return &FsRepo{path: path}, nil
}

func (fsr *FsRepo) Path() string {
	return fsr.path
}

// Lock acquires exclusive lock on this repo
func (fsr *FsRepo) Lock() (*LockedRepo, error) {
	if err := os.MkdirAll(fsr.path, 0755); err != nil {
		return nil, xerrors.Errorf("creating repo dir: %w", err)
	}

	locked, err := fslock.Locked(fsr.path, fsLock)
	if err != nil {
		return nil, xerrors.Errorf("could not check lock status: %w", err)
	}
	if locked {
		return nil, ErrRepoAlreadyLocked
	}

	closer, err := fslock.Lock(fsr.path, fsLock)
	if err != nil {
		return nil, xerrors.Errorf("could not lock the repo: %w", err)
	}
	return &LockedRepo{
		path:   fsr.path,
		closer: closer,
	}, nil
}

type LockedRepo struct {
	path   string
	closer io.Closer

	ds datastore.Batching
}

func (fsr *LockedRepo) Path() string {
	return fsr.path
}

// Datastore opens the leveldb metadata store. Operations are measured
// under the "measure.metadata." prefix.
func (fsr *LockedRepo) Datastore() (datastore.Batching, error) {
	if fsr.ds != nil {
		return fsr.ds, nil
	}

	ds, err := levelds.NewDatastore(filepath.Join(fsr.path, fsDatastore), &levelds.Options{
		Compression: ldbopts.NoCompression,
		NoSync:      false,
		Strict:      ldbopts.StrictAll,
		ReadOnly:    false,
	})
	if err != nil {
		return nil, xerrors.Errorf("opening metadata datastore: %w", err)
	}

	fsr.ds = measure.New("measure.metadata.", ds)
	return fsr.ds, nil
}

func (fsr *LockedRepo) Close() error {
	var err error
	if fsr.ds != nil {
		err = multierr.Append(err, fsr.ds.Close())
		fsr.ds = nil
	}
	if fsr.closer != nil {
		err = multierr.Append(err, fsr.closer.Close())
		fsr.closer = nil
	}
	if err != nil {
		log.Errorw("closing repo", "path", fsr.path, "error", err)
	}
	return err
}
