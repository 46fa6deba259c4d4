package sectorbuilder

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"

	"github.com/filecoin-project/go-state-types/abi"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/ipfs/go-datastore"
	"github.com/ipfs/go-datastore/namespace"
	logging "github.com/ipfs/go-log/v2"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/filbase/api"
	"github.com/filecoin-project/filbase/proofs"
)

var log = logging.Logger("sectorbuilder")

var (
	lastSectorIdKey = datastore.NewKey("/sectorbuilder/last")
	proverIdKey     = datastore.NewKey("/sectorbuilder/prover")

	stagedPrefix = datastore.NewKey("/sectorbuilder/staged")
	sealedPrefix = datastore.NewKey("/sectorbuilder/sealed")
)

// unsealedCacheSize is the number of unsealed sectors ReadPiece keeps.
const unsealedCacheSize = 4

type Config struct {
	SectorSize abi.SectorSize
	ProverID   api.ProverID

	// LastUsedID is the floor for sector numbering; a higher id recorded
	// in the metadata store wins.
	LastUsedID abi.SectorNumber

	MaxNumStagedSectors uint8
	PoRepPartitions     uint8
	PoStPartitions      uint8

	SealedDir string
	StagedDir string
}

// SectorBuilder owns every staged and sealed sector. All methods take lk
// for their whole duration, including the time spent in the prover, so a
// reader never observes a half applied seal.
type SectorBuilder struct {
	lk sync.Mutex

	staged datastore.Batching
	sealed datastore.Batching
	ds     datastore.Batching

	prover proofs.Prover

	ssize     abi.SectorSize
	userBytes uint64
	proverID  api.ProverID
	porep     proofs.PoRepConfig
	post      proofs.PoStConfig
	maxStaged int

	stagedDir string
	sealedDir string

	lastID        abi.SectorNumber
	stagedSectors map[abi.SectorNumber]*stagedSector
	sealedSectors map[abi.SectorNumber]*sealedSector
	pieces        map[string]abi.SectorNumber

	unsealed *lru.Cache[abi.SectorNumber, []byte]
}

func New(ctx context.Context, cfg *Config, ds datastore.Batching, prover proofs.Prover) (*SectorBuilder, error) {
	porep, err := proofs.NewPoRepConfig(cfg.SectorSize, cfg.PoRepPartitions)
	if err != nil {
		return nil, xerrors.Errorf("porep config: %w", err)
	}
	post, err := proofs.NewPoStConfig(cfg.SectorSize, cfg.PoStPartitions)
	if err != nil {
		return nil, xerrors.Errorf("post config: %w", err)
	}
	if cfg.MaxNumStagedSectors == 0 {
		return nil, xerrors.Errorf("max staged sectors must be positive: %w", api.ErrInvalidArgument)
	}

	for _, dir := range []string{cfg.StagedDir, cfg.SealedDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, xerrors.Errorf("creating %s: %s: %w", dir, err, api.ErrIO)
		}
	}

	unsealed, err := lru.New[abi.SectorNumber, []byte](unsealedCacheSize)
	if err != nil {
		return nil, err
	}

	sb := &SectorBuilder{
		staged: namespace.Wrap(ds, stagedPrefix),
		sealed: namespace.Wrap(ds, sealedPrefix),
		ds:     ds,

		prover: prover,

		ssize:     cfg.SectorSize,
		userBytes: proofs.UserBytes(cfg.SectorSize),
		proverID:  cfg.ProverID,
		porep:     porep,
		post:      post,
		maxStaged: int(cfg.MaxNumStagedSectors),

		stagedDir: cfg.StagedDir,
		sealedDir: cfg.SealedDir,

		lastID:        cfg.LastUsedID,
		stagedSectors: map[abi.SectorNumber]*stagedSector{},
		sealedSectors: map[abi.SectorNumber]*sealedSector{},
		pieces:        map[string]abi.SectorNumber{},

		unsealed: unsealed,
	}

	if err := sb.load(ctx); err != nil {
		return nil, xerrors.Errorf("loading sector metadata: %w", err)
	}

	if err := ds.Put(ctx, proverIdKey, cfg.ProverID[:]); err != nil {
		return nil, xerrors.Errorf("storing prover id: %s: %w", err, api.ErrIO)
	}

	log.Infow("sector builder ready",
		"sectorSize", cfg.SectorSize,
		"lastID", sb.lastID,
		"staged", len(sb.stagedSectors),
		"sealed", len(sb.sealedSectors))

	return sb, nil
}

// StoredProverID returns the prover id a previous run recorded in ds.
func StoredProverID(ctx context.Context, ds datastore.Datastore) (api.ProverID, bool, error) {
	b, err := ds.Get(ctx, proverIdKey)
	switch {
	case err == datastore.ErrNotFound:
		return api.ProverID{}, false, nil
	case err != nil:
		return api.ProverID{}, false, err
	}

	var id api.ProverID
	if len(b) != len(id) {
		return api.ProverID{}, false, xerrors.Errorf("stored prover id has %d bytes", len(b))
	}
	copy(id[:], b)
	return id, true, nil
}

func (sb *SectorBuilder) load(ctx context.Context) error {
	b, err := sb.ds.Get(ctx, lastSectorIdKey)
	switch err {
	case nil:
		i, err := strconv.ParseUint(string(b), 10, 64)
		if err != nil {
			return err
		}
		if abi.SectorNumber(i) > sb.lastID {
			sb.lastID = abi.SectorNumber(i)
		}
	case datastore.ErrNotFound:
	default:
		return err
	}

	staged, err := loadRecords[stagedSector](ctx, sb.staged)
	if err != nil {
		return xerrors.Errorf("staged sectors: %w", err)
	}
	for _, s := range staged {
		if s.Status.Code == api.StatusSealing {
			log.Warnw("sector was sealing when the builder stopped, requeueing", "sector", s.ID)
			s.Status = api.Pending()
		}
		sb.stagedSectors[s.ID] = s
		for _, p := range s.Pieces {
			sb.pieces[p.Key] = s.ID
		}
	}

	sealed, err := loadRecords[sealedSector](ctx, sb.sealed)
	if err != nil {
		return xerrors.Errorf("sealed sectors: %w", err)
	}
	for _, s := range sealed {
		sb.sealedSectors[s.ID()] = s
		for _, p := range s.Meta.Pieces {
			sb.pieces[p.Key] = s.ID()
		}
	}

	return nil
}

func (sb *SectorBuilder) MaxUserBytesPerStagedSector() uint64 {
	return sb.userBytes
}

func (sb *SectorBuilder) ProverID() api.ProverID {
	return sb.proverID
}

func (sb *SectorBuilder) StagedSectorPath(id abi.SectorNumber) string {
	return filepath.Join(sb.stagedDir, sectorName(id))
}

func (sb *SectorBuilder) SealedSectorPath(id abi.SectorNumber) string {
	return filepath.Join(sb.sealedDir, sectorName(id))
}

func sectorName(id abi.SectorNumber) string {
	return fmt.Sprintf("s-%d", id)
}

func (sb *SectorBuilder) acquireSectorID(ctx context.Context) (abi.SectorNumber, error) {
	id := sb.lastID + 1
	if err := sb.ds.Put(ctx, lastSectorIdKey, []byte(fmt.Sprint(id))); err != nil {
		return 0, xerrors.Errorf("persisting last sector id: %s: %w", err, api.ErrIO)
	}
	sb.lastID = id
	return id, nil
}

// SealStatus reports the phase of sector id.
func (sb *SectorBuilder) SealStatus(ctx context.Context, id abi.SectorNumber) (api.SealStatus, error) {
	sb.lk.Lock()
	defer sb.lk.Unlock()

	if s, ok := sb.sealedSectors[id]; ok {
		return api.Sealed(s.Meta), nil
	}
	if s, ok := sb.stagedSectors[id]; ok {
		return s.Status, nil
	}
	return api.SealStatus{}, xerrors.Errorf("sector %d: %w", id, api.ErrNotFound)
}

func (sb *SectorBuilder) StagedSectors(ctx context.Context) ([]api.StagedSectorMetadata, error) {
	sb.lk.Lock()
	defer sb.lk.Unlock()

	out := make([]api.StagedSectorMetadata, 0, len(sb.stagedSectors))
	for _, id := range sortedIDs(sb.stagedSectors) {
		out = append(out, sb.stagedSectors[id].metadata(sb.StagedSectorPath(id)))
	}
	return out, nil
}

func (sb *SectorBuilder) SealedSectors(ctx context.Context) ([]api.SealedSectorMetadata, error) {
	sb.lk.Lock()
	defer sb.lk.Unlock()

	out := make([]api.SealedSectorMetadata, 0, len(sb.sealedSectors))
	for _, id := range sortedIDs(sb.sealedSectors) {
		out = append(out, sb.sealedSectors[id].Meta)
	}
	return out, nil
}

func sortedIDs[T any](m map[abi.SectorNumber]T) []abi.SectorNumber {
	ids := make([]abi.SectorNumber, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
