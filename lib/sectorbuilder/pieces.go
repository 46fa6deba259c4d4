package sectorbuilder

import (
	"context"
	"io"
	"os"
	"slices"

	"github.com/filecoin-project/go-padreader"
	"github.com/filecoin-project/go-state-types/abi"
	"go.opencensus.io/stats"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/filbase/api"
	"github.com/filecoin-project/filbase/metrics"
	"github.com/filecoin-project/filbase/proofs"
)

// AddPiece copies the first amount bytes of the file at path into a staged
// sector and returns the sector it was placed in.
func (sb *SectorBuilder) AddPiece(ctx context.Context, key string, amount uint64, path string) (abi.SectorNumber, error) {
	sb.lk.Lock()
	defer sb.lk.Unlock()

	if key == "" {
		return 0, xerrors.Errorf("empty piece key: %w", api.ErrInvalidArgument)
	}
	if amount == 0 {
		return 0, xerrors.Errorf("piece %q has no data: %w", key, api.ErrInvalidArgument)
	}
	if sid, ok := sb.pieces[key]; ok {
		return 0, xerrors.Errorf("piece %q already added to sector %d: %w", key, sid, api.ErrState)
	}

	aligned := uint64(padreader.PaddedSize(amount))
	if aligned > sb.userBytes {
		return 0, xerrors.Errorf("piece %q of %d bytes exceeds sector capacity %d: %w", key, amount, sb.userBytes, api.ErrInvalidArgument)
	}

	f, err := os.Open(path)
	if err != nil {
		return 0, xerrors.Errorf("opening piece file: %s: %w", err, api.ErrIO)
	}
	defer f.Close() //nolint:errcheck

	st, err := f.Stat()
	if err != nil {
		return 0, xerrors.Errorf("stat piece file: %s: %w", err, api.ErrIO)
	}
	if uint64(st.Size()) < amount {
		return 0, xerrors.Errorf("piece file %s has %d bytes, %d requested: %w", path, st.Size(), amount, api.ErrInvalidArgument)
	}

	s, err := sb.sectorFor(ctx, aligned)
	if err != nil {
		return 0, err
	}

	next := s.clone()
	next.Pieces = append(next.Pieces, pieceInfo{Key: key, NumBytes: amount, Offset: s.Used})
	next.Used += aligned
	if next.Used+uint64(padreader.PaddedSize(1)) > sb.userBytes {
		next.Accepting = false
	}

	if err := sb.writeStaged(s.ID, s.Used, io.LimitReader(f, int64(amount)), amount); err != nil {
		return 0, err
	}

	if err := putRecord(ctx, sb.staged, sectorKey(next.ID), next); err != nil {
		if terr := os.Truncate(sb.StagedSectorPath(s.ID), int64(s.Used)); terr != nil {
			log.Errorw("failed to roll back staged sector file", "sector", s.ID, "error", terr)
		}
		return 0, err
	}

	sb.stagedSectors[next.ID] = next
	sb.pieces[key] = next.ID

	stats.Record(ctx, metrics.PieceBytesStaged.M(int64(amount)))
	log.Infow("added piece", "key", key, "bytes", amount, "sector", next.ID)

	return next.ID, nil
}

// sectorFor picks the lowest numbered staged sector with room for aligned
// bytes, opening a new one when none has.
func (sb *SectorBuilder) sectorFor(ctx context.Context, aligned uint64) (*stagedSector, error) {
	open := 0
	for _, id := range sortedIDs(sb.stagedSectors) {
		s := sb.stagedSectors[id]
		if s.Status.Code != api.StatusFailed {
			open++
		}
		if s.Accepting && s.Status.Code == api.StatusPending && s.Used+aligned <= sb.userBytes {
			return s, nil
		}
	}

	if open >= sb.maxStaged {
		return nil, xerrors.Errorf("all %d staged sectors are full, seal them first: %w", sb.maxStaged, api.ErrState)
	}

	id, err := sb.acquireSectorID(ctx)
	if err != nil {
		return nil, err
	}
	return &stagedSector{ID: id, Accepting: true, Status: api.Pending()}, nil
}

func (sb *SectorBuilder) writeStaged(id abi.SectorNumber, offset uint64, r io.Reader, size uint64) error {
	path := sb.StagedSectorPath(id)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE, 0644)
	if err != nil {
		return xerrors.Errorf("opening staged sector: %s: %w", err, api.ErrIO)
	}

	pr, aligned := padreader.New(r, size)
	if _, err := f.Seek(int64(offset), io.SeekStart); err != nil {
		_ = f.Close()
		return xerrors.Errorf("seeking staged sector: %s: %w", err, api.ErrIO)
	}

	if _, err := io.CopyN(f, pr, int64(aligned)); err != nil {
		_ = f.Truncate(int64(offset))
		_ = f.Close()
		return xerrors.Errorf("writing piece into sector %d: %s: %w", id, err, api.ErrIO)
	}

	if err := f.Close(); err != nil {
		return xerrors.Errorf("closing staged sector: %s: %w", err, api.ErrIO)
	}
	return nil
}

// ReadPiece returns the original bytes of a piece from its sealed sector.
func (sb *SectorBuilder) ReadPiece(ctx context.Context, key string) ([]byte, error) {
	sb.lk.Lock()
	defer sb.lk.Unlock()

	sid, ok := sb.pieces[key]
	if !ok {
		return nil, xerrors.Errorf("piece %q: %w", key, api.ErrNotFound)
	}

	s, ok := sb.sealedSectors[sid]
	if !ok {
		return nil, xerrors.Errorf("piece %q is in sector %d which is not sealed: %w", key, sid, api.ErrNotFound)
	}

	p, offset, ok := s.piece(key)
	if !ok {
		return nil, xerrors.Errorf("piece %q in sector %d: %w", key, sid, api.ErrNotFound)
	}

	data, err := sb.unsealSector(ctx, s)
	if err != nil {
		return nil, err
	}

	if offset+p.NumBytes > uint64(len(data)) {
		return nil, xerrors.Errorf("piece %q extends past sector %d data: %w", key, sid, api.ErrState)
	}
	return slices.Clone(data[offset : offset+p.NumBytes]), nil
}

func (sb *SectorBuilder) unsealSector(ctx context.Context, s *sealedSector) ([]byte, error) {
	if data, ok := sb.unsealed.Get(s.ID()); ok {
		return data, nil
	}

	replica, err := os.ReadFile(s.Meta.SectorAccess)
	if err != nil {
		return nil, xerrors.Errorf("reading sealed sector %d: %s: %w", s.ID(), err, api.ErrIO)
	}

	data, err := sb.prover.Unseal(ctx, proofs.UnsealInput{
		Config:   sb.porep,
		ProverID: sb.proverID,
		SectorID: s.ID(),
		Replica:  replica,
	})
	if err != nil {
		return nil, proofs.WrapErr("unsealing sector", err)
	}

	sb.unsealed.Add(s.ID(), data)
	return data, nil
}
