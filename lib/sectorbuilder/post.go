package sectorbuilder

import (
	"context"
	"os"

	"github.com/samber/lo"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/filbase/api"
	"github.com/filecoin-project/filbase/metrics"
	"github.com/filecoin-project/filbase/proofs"
)

// GeneratePoSt proves the sealed sectors named by commRs against seed.
// Sectors whose replica is no longer on disk are reported as faults.
func (sb *SectorBuilder) GeneratePoSt(ctx context.Context, commRs []api.Commitment, seed api.ChallengeSeed) ([][]byte, []uint64, error) {
	sb.lk.Lock()
	defer sb.lk.Unlock()

	if len(commRs) == 0 {
		return nil, nil, xerrors.Errorf("no comm_rs to prove: %w", api.ErrInvalidArgument)
	}

	byCommR := make(map[api.Commitment]*sealedSector, len(sb.sealedSectors))
	for _, s := range sb.sealedSectors {
		byCommR[s.Meta.CommR] = s
	}

	sectors := make([]*sealedSector, 0, len(commRs))
	for _, c := range commRs {
		s, ok := byCommR[c]
		if !ok {
			return nil, nil, xerrors.Errorf("no sealed sector with comm_r %s: %w", c, api.ErrNotFound)
		}
		sectors = append(sectors, s)
	}

	faults := lo.FilterMap(sectors, func(s *sealedSector, _ int) (uint64, bool) {
		_, err := os.Stat(s.Meta.SectorAccess)
		return s.Meta.SectorID, err != nil
	})
	if len(faults) > 0 {
		log.Warnw("faulty sectors in post", "faults", faults)
	}

	defer metrics.Timer(ctx, metrics.PoStDuration)()

	out, err := sb.prover.GeneratePoSt(ctx, proofs.PoStInput{
		Config:        sb.post,
		CommRs:        commRs,
		ChallengeSeed: seed,
		Faults:        faults,
	})
	if err != nil {
		return nil, nil, proofs.WrapErr("generating post", err)
	}
	return out, faults, nil
}
