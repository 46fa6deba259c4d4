package proofs

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"

	"github.com/filecoin-project/go-state-types/abi"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/filbase/api"
)

// SectorIDToBytes renders a sector number into the fixed-width id the
// proof circuits take, little-endian and zero padded.
func SectorIDToBytes(id abi.SectorNumber) api.SectorIDBytes {
	var out api.SectorIDBytes
	binary.LittleEndian.PutUint64(out[:8], uint64(id))
	return out
}

func SectorIDFromBytes(b api.SectorIDBytes) (abi.SectorNumber, error) {
	for _, c := range b[8:] {
		if c != 0 {
			return 0, xerrors.Errorf("sector id %s does not fit in 64 bits: %w", b, api.ErrInvalidArgument)
		}
	}
	return abi.SectorNumber(binary.LittleEndian.Uint64(b[:8])), nil
}

func RandomProverID() (api.ProverID, error) {
	var id api.ProverID
	if _, err := rand.Read(id[:]); err != nil {
		return api.ProverID{}, xerrors.Errorf("generating prover id: %w", err)
	}
	return id, nil
}

// DecodeFixedHex decodes s into exactly len(out) bytes.
func DecodeFixedHex(s string, out []byte) error {
	b, err := hex.DecodeString(s)
	if err != nil {
		return xerrors.Errorf("malformed hex %q: %s: %w", s, err, api.ErrInvalidArgument)
	}
	if len(b) != len(out) {
		return xerrors.Errorf("expected %d bytes, %q decodes to %d: %w", len(out), s, len(b), api.ErrInvalidArgument)
	}
	copy(out, b)
	return nil
}

func ParseCommitment(s string) (api.Commitment, error) {
	var c api.Commitment
	if err := DecodeFixedHex(s, c[:]); err != nil {
		return api.Commitment{}, err
	}
	return c, nil
}

func ParseProverID(s string) (api.ProverID, error) {
	var p api.ProverID
	if err := DecodeFixedHex(s, p[:]); err != nil {
		return api.ProverID{}, err
	}
	return p, nil
}

func ParseSectorIDBytes(s string) (api.SectorIDBytes, error) {
	var id api.SectorIDBytes
	if err := DecodeFixedHex(s, id[:]); err != nil {
		return api.SectorIDBytes{}, err
	}
	return id, nil
}
