package sectorbuilder

import (
	"context"
	"fmt"

	"github.com/filecoin-project/go-state-types/abi"
	"github.com/fxamacker/cbor/v2"
	"github.com/ipfs/go-datastore"
	"github.com/ipfs/go-datastore/query"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/filbase/api"
)

type pieceInfo struct {
	Key      string
	NumBytes uint64

	// Offset is the position of the piece in the unsealed sector data.
	Offset uint64
}

type stagedSector struct {
	ID        abi.SectorNumber
	Pieces    []pieceInfo
	Used      uint64
	Accepting bool
	Status    api.SealStatus
}

func (s *stagedSector) metadata(access string) api.StagedSectorMetadata {
	return api.StagedSectorMetadata{
		SectorID:     uint64(s.ID),
		SectorAccess: access,
		Pieces:       pieceMetadata(s.Pieces),
		Status:       s.Status,
	}
}

func (s *stagedSector) clone() *stagedSector {
	c := *s
	c.Pieces = append([]pieceInfo(nil), s.Pieces...)
	return &c
}

type sealedSector struct {
	Meta    api.SealedSectorMetadata
	Offsets []uint64
}

func (s *sealedSector) ID() abi.SectorNumber {
	return abi.SectorNumber(s.Meta.SectorID)
}

func (s *sealedSector) piece(key string) (api.PieceMetadata, uint64, bool) {
	for i, p := range s.Meta.Pieces {
		if p.Key == key {
			return p, s.Offsets[i], true
		}
	}
	return api.PieceMetadata{}, 0, false
}

func pieceMetadata(pieces []pieceInfo) []api.PieceMetadata {
	out := make([]api.PieceMetadata, len(pieces))
	for i, p := range pieces {
		out[i] = api.PieceMetadata{Key: p.Key, NumBytes: p.NumBytes}
	}
	return out
}

func sectorKey(id abi.SectorNumber) datastore.Key {
	return datastore.NewKey(fmt.Sprint(uint64(id)))
}

func putRecord(ctx context.Context, ds datastore.Write, key datastore.Key, rec interface{}) error {
	b, err := cbor.Marshal(rec)
	if err != nil {
		return xerrors.Errorf("encoding record %s: %w", key, err)
	}
	if err := ds.Put(ctx, key, b); err != nil {
		return xerrors.Errorf("storing record %s: %s: %w", key, err, api.ErrIO)
	}
	return nil
}

func loadRecords[T any](ctx context.Context, ds datastore.Datastore) ([]*T, error) {
	res, err := ds.Query(ctx, query.Query{})
	if err != nil {
		return nil, err
	}
	entries, err := res.Rest()
	if err != nil {
		return nil, err
	}

	out := make([]*T, 0, len(entries))
	for _, e := range entries {
		rec := new(T)
		if err := cbor.Unmarshal(e.Value, rec); err != nil {
			return nil, xerrors.Errorf("decoding record %s: %w", e.Key, err)
		}
		out = append(out, rec)
	}
	return out, nil
}
