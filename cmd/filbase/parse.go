package main

import (
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/samber/lo"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/filbase/api"
	"github.com/filecoin-project/filbase/proofs"
)

func splitList(s string) []string {
	return lo.Compact(lo.Map(strings.Split(s, ","), func(item string, _ int) string {
		return strings.TrimSpace(item)
	}))
}

func parseCommitments(s string) ([]api.Commitment, error) {
	items := splitList(s)
	out := make([]api.Commitment, 0, len(items))
	for i, item := range items {
		c, err := proofs.ParseCommitment(item)
		if err != nil {
			return nil, xerrors.Errorf("commitment %d: %w", i, err)
		}
		out = append(out, c)
	}
	return out, nil
}

func parseChallengeSeed(s string) (api.ChallengeSeed, error) {
	var seed api.ChallengeSeed
	if err := proofs.DecodeFixedHex(s, seed[:]); err != nil {
		return api.ChallengeSeed{}, xerrors.Errorf("challenge seed: %w", err)
	}
	return seed, nil
}

// parseProofs decodes a comma separated list of variable length hex proofs.
func parseProofs(s string) ([][]byte, error) {
	items := splitList(s)
	out := make([][]byte, 0, len(items))
	for i, item := range items {
		b, err := hex.DecodeString(item)
		if err != nil {
			return nil, xerrors.Errorf("proof %d is not hex: %s: %w", i, err, api.ErrInvalidArgument)
		}
		out = append(out, b)
	}
	return out, nil
}

func parseUint64s(s string) ([]uint64, error) {
	items := splitList(s)
	out := make([]uint64, 0, len(items))
	for _, item := range items {
		v, err := strconv.ParseUint(item, 10, 64)
		if err != nil {
			return nil, xerrors.Errorf("%q is not a sector number: %w", item, api.ErrInvalidArgument)
		}
		out = append(out, v)
	}
	return out, nil
}

type sealVerifyParams struct {
	SectorSize string
	CommR      string
	CommD      string
	CommRStar  string
	ProverID   string
	SectorID   string
	Proof      string
}

// request validates every fixed width field before anything is sent.
func (p sealVerifyParams) request() (*api.SealVerifyRequest, error) {
	ss, err := parseSectorSize(p.SectorSize)
	if err != nil {
		return nil, err
	}

	req := &api.SealVerifyRequest{SectorSize: uint64(ss)}
	for _, f := range []struct {
		name string
		in   string
		out  []byte
	}{
		{"comm-r", p.CommR, req.CommR[:]},
		{"comm-d", p.CommD, req.CommD[:]},
		{"comm-r-star", p.CommRStar, req.CommRStar[:]},
		{"prover-id", p.ProverID, req.ProverID[:]},
		{"sector-id", p.SectorID, req.SectorID[:]},
	} {
		if err := proofs.DecodeFixedHex(f.in, f.out); err != nil {
			return nil, xerrors.Errorf("--%s: %w", f.name, err)
		}
	}

	req.Proof, err = hex.DecodeString(p.Proof)
	if err != nil {
		return nil, xerrors.Errorf("--proof is not hex: %s: %w", err, api.ErrInvalidArgument)
	}
	return req, nil
}

type postVerifyParams struct {
	SectorSize      string
	ProofPartitions uint
	CommRs          string
	ChallengeSeed   string
	Proofs          string
	Faults          string
}

func (p postVerifyParams) request() (*api.PostVerifyRequest, error) {
	ss, err := parseSectorSize(p.SectorSize)
	if err != nil {
		return nil, err
	}
	commRs, err := parseCommitments(p.CommRs)
	if err != nil {
		return nil, err
	}
	seed, err := parseChallengeSeed(p.ChallengeSeed)
	if err != nil {
		return nil, err
	}
	prfs, err := parseProofs(p.Proofs)
	if err != nil {
		return nil, err
	}
	faults, err := parseUint64s(p.Faults)
	if err != nil {
		return nil, err
	}

	partitions := p.ProofPartitions
	if partitions == 0 {
		partitions = uint(len(prfs))
	}
	if partitions > 255 {
		return nil, xerrors.Errorf("%d proof partitions: %w", partitions, api.ErrInvalidArgument)
	}

	return &api.PostVerifyRequest{
		SectorSize:      uint64(ss),
		ProofPartitions: uint8(partitions),
		CommRs:          commRs,
		ChallengeSeed:   seed,
		Proofs:          prfs,
		Faults:          faults,
	}, nil
}
