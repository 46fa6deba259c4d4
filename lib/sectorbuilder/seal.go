package sectorbuilder

import (
	"context"
	"io"
	"os"

	"github.com/filecoin-project/go-state-types/abi"
	"github.com/hashicorp/go-multierror"
	"go.opencensus.io/stats"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/filbase/api"
	"github.com/filecoin-project/filbase/metrics"
	"github.com/filecoin-project/filbase/proofs"
)

// SealAllStaged seals every pending staged sector that holds data, lowest
// id first. The lock is held throughout; ctx is only checked between
// sectors, a seal in progress always runs to completion. Failed sectors
// keep their Failed status and are not retried.
func (sb *SectorBuilder) SealAllStaged(ctx context.Context) error {
	sb.lk.Lock()
	defer sb.lk.Unlock()

	var todo []abi.SectorNumber
	for _, id := range sortedIDs(sb.stagedSectors) {
		s := sb.stagedSectors[id]
		if s.Status.Code == api.StatusPending && len(s.Pieces) > 0 {
			todo = append(todo, id)
		}
	}

	var merr error
	for i, id := range todo {
		if err := ctx.Err(); err != nil {
			merr = multierror.Append(merr, xerrors.Errorf("sealing stopped with %d sectors left: %w", len(todo)-i, err))
			break
		}
		if err := sb.sealSector(ctx, id); err != nil {
			merr = multierror.Append(merr, err)
		}
	}

	return merr
}

// sealSector runs to completion once started: cancelling ctx never fails a
// sector half way through.
func (sb *SectorBuilder) sealSector(ctx context.Context, id abi.SectorNumber) error {
	ctx = context.WithoutCancel(ctx)

	s := sb.stagedSectors[id].clone()
	s.Status = api.Sealing()
	s.Accepting = false
	if err := putRecord(ctx, sb.staged, sectorKey(id), s); err != nil {
		return err
	}
	sb.stagedSectors[id] = s

	log.Infow("sealing sector", "sector", id, "pieces", len(s.Pieces))
	done := metrics.Timer(ctx, metrics.SealDuration)

	opFinishWait(ctx)

	meta, err := sb.seal(ctx, s)
	if err != nil {
		return sb.failSector(ctx, s, err)
	}

	sealed := &sealedSector{Meta: meta, Offsets: make([]uint64, len(s.Pieces))}
	for i, p := range s.Pieces {
		sealed.Offsets[i] = p.Offset
	}

	if err := sb.commitSealed(ctx, sealed); err != nil {
		_ = os.Remove(meta.SectorAccess)
		return sb.failSector(ctx, s, err)
	}

	delete(sb.stagedSectors, id)
	sb.sealedSectors[id] = sealed

	if err := os.Remove(sb.StagedSectorPath(id)); err != nil {
		log.Warnw("removing staged sector file", "sector", id, "error", err)
	}

	took := done()
	stats.Record(ctx, metrics.SectorsSealed.M(1))
	log.Infow("sealed sector", "sector", id, "commR", meta.CommR, "took", took)
	return nil
}

func (sb *SectorBuilder) seal(ctx context.Context, s *stagedSector) (api.SealedSectorMetadata, error) {
	data, err := sb.readStaged(s)
	if err != nil {
		return api.SealedSectorMetadata{}, err
	}

	out, err := sb.prover.Seal(ctx, proofs.SealInput{
		Config:   sb.porep,
		ProverID: sb.proverID,
		SectorID: s.ID,
		Data:     data,
	})
	if err != nil {
		return api.SealedSectorMetadata{}, proofs.WrapErr("sealing", err)
	}

	path := sb.SealedSectorPath(s.ID)
	if err := os.WriteFile(path, out.Replica, 0644); err != nil {
		return api.SealedSectorMetadata{}, xerrors.Errorf("writing replica: %s: %w", err, api.ErrIO)
	}

	return api.SealedSectorMetadata{
		SectorID:     uint64(s.ID),
		SectorAccess: path,
		CommR:        out.CommR,
		CommD:        out.CommD,
		CommRStar:    out.CommRStar,
		Proof:        out.Proof,
		Pieces:       pieceMetadata(s.Pieces),
	}, nil
}

// readStaged returns the staged sector data zero filled to the usable
// sector capacity.
func (sb *SectorBuilder) readStaged(s *stagedSector) ([]byte, error) {
	f, err := os.Open(sb.StagedSectorPath(s.ID))
	if err != nil {
		return nil, xerrors.Errorf("opening staged sector: %s: %w", err, api.ErrIO)
	}
	defer f.Close() //nolint:errcheck

	data := make([]byte, sb.userBytes)
	if _, err := io.ReadFull(f, data[:s.Used]); err != nil {
		return nil, xerrors.Errorf("reading staged sector %d: %s: %w", s.ID, err, api.ErrIO)
	}
	return data, nil
}

func (sb *SectorBuilder) commitSealed(ctx context.Context, s *sealedSector) error {
	batch, err := sb.ds.Batch(ctx)
	if err != nil {
		return xerrors.Errorf("%s: %w", err, api.ErrIO)
	}

	if err := putRecord(ctx, batch, sealedPrefix.Child(sectorKey(s.ID())), s); err != nil {
		return err
	}
	if err := batch.Delete(ctx, stagedPrefix.Child(sectorKey(s.ID()))); err != nil {
		return xerrors.Errorf("%s: %w", err, api.ErrIO)
	}
	if err := batch.Commit(ctx); err != nil {
		return xerrors.Errorf("committing sealed sector %d: %s: %w", s.ID(), err, api.ErrIO)
	}
	return nil
}

func (sb *SectorBuilder) failSector(ctx context.Context, s *stagedSector, cause error) error {
	log.Errorw("sealing failed", "sector", s.ID, "error", cause)
	stats.Record(ctx, metrics.SealFailures.M(1))

	failed := s.clone()
	failed.Status = api.Failed(cause.Error())
	if err := putRecord(ctx, sb.staged, sectorKey(s.ID), failed); err != nil {
		log.Errorw("persisting failed seal status", "sector", s.ID, "error", err)
	}
	sb.stagedSectors[s.ID] = failed

	return xerrors.Errorf("sealing sector %d: %w", s.ID, cause)
}
