package sectorbuilder

import (
	"context"
	"path/filepath"

	"github.com/filecoin-project/go-state-types/abi"
	"github.com/ipfs/go-datastore"
	dssync "github.com/ipfs/go-datastore/sync"

	"github.com/filecoin-project/filbase/api"
	"github.com/filecoin-project/filbase/proofs"
)

// TempSectorbuilder builds a sector builder rooted at dir, backed by an in
// memory datastore and the mock prover.
func TempSectorbuilder(dir string, sectorSize abi.SectorSize, prover proofs.Prover) (*SectorBuilder, error) {
	if prover == nil {
		prover = proofs.MockProver{}
	}

	return New(context.TODO(), &Config{
		SectorSize: sectorSize,
		ProverID:   api.ProverID{0x0f, 0x1b},

		MaxNumStagedSectors: 4,
		PoRepPartitions:     2,
		PoStPartitions:      1,

		SealedDir: filepath.Join(dir, "sealed"),
		StagedDir: filepath.Join(dir, "staging"),
	}, dssync.MutexWrap(datastore.NewMapDatastore()), prover)
}
