package api

import (
	"encoding/hex"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"golang.org/x/xerrors"
)

const (
	// CommitmentLen is the width of every commitment and challenge seed.
	CommitmentLen = 32

	// IDLen is the width of prover and sector ids as handed to the proof library.
	IDLen = 31
)

// Commitment is a 32-byte digest: comm_r, comm_d or comm_r_star.
type Commitment [CommitmentLen]byte

func (c Commitment) String() string {
	return hex.EncodeToString(c[:])
}

func (c Commitment) MarshalCBOR() ([]byte, error) {
	return cbor.Marshal(c[:])
}

func (c *Commitment) UnmarshalCBOR(b []byte) error {
	return unmarshalFixed(b, c[:], "Commitment")
}

// ChallengeSeed is the randomness a proof-of-spacetime is generated against.
type ChallengeSeed [CommitmentLen]byte

func (s ChallengeSeed) String() string {
	return hex.EncodeToString(s[:])
}

func (s ChallengeSeed) MarshalCBOR() ([]byte, error) {
	return cbor.Marshal(s[:])
}

func (s *ChallengeSeed) UnmarshalCBOR(b []byte) error {
	return unmarshalFixed(b, s[:], "ChallengeSeed")
}

// ProverID identifies the storage provider a replica was sealed for.
type ProverID [IDLen]byte

func (p ProverID) String() string {
	return hex.EncodeToString(p[:])
}

func (p ProverID) MarshalCBOR() ([]byte, error) {
	return cbor.Marshal(p[:])
}

func (p *ProverID) UnmarshalCBOR(b []byte) error {
	return unmarshalFixed(b, p[:], "ProverID")
}

// SectorIDBytes is the fixed-width encoding of a sector number.
type SectorIDBytes [IDLen]byte

func (s SectorIDBytes) String() string {
	return hex.EncodeToString(s[:])
}

func (s SectorIDBytes) MarshalCBOR() ([]byte, error) {
	return cbor.Marshal(s[:])
}

func (s *SectorIDBytes) UnmarshalCBOR(b []byte) error {
	return unmarshalFixed(b, s[:], "SectorIDBytes")
}

// unmarshalFixed decodes a CBOR byte string of exactly len(out) bytes.
func unmarshalFixed(b []byte, out []byte, name string) error {
	var raw []byte
	if err := cbor.Unmarshal(b, &raw); err != nil {
		return xerrors.Errorf("decoding %s: %w", name, err)
	}
	if len(raw) != len(out) {
		return xerrors.Errorf("%s must be %d bytes, got %d", name, len(out), len(raw))
	}
	copy(out, raw)
	return nil
}

// PieceMetadata describes a piece of client data packed into a sector.
type PieceMetadata struct {
	Key      string
	NumBytes uint64
}

// SealedSectorMetadata is everything retained about a sector once its
// replica has been produced.
type SealedSectorMetadata struct {
	SectorID     uint64
	SectorAccess string
	CommR        Commitment
	CommD        Commitment
	CommRStar    Commitment
	Proof        []byte
	Pieces       []PieceMetadata
}

// StagedSectorMetadata describes a sector that is still accepting data or
// waiting to be sealed.
type StagedSectorMetadata struct {
	SectorID     uint64
	SectorAccess string
	Pieces       []PieceMetadata
	Status       SealStatus
}

// SealStatusCode enumerates the phases a sector moves through.
type SealStatusCode uint8

const (
	StatusPending SealStatusCode = iota
	StatusSealing
	StatusSealed
	StatusFailed
)

var statusNames = map[SealStatusCode]string{
	StatusPending: "Pending",
	StatusSealing: "Sealing",
	StatusSealed:  "Sealed",
	StatusFailed:  "Failed",
}

func (c SealStatusCode) String() string {
	if s, ok := statusNames[c]; ok {
		return s
	}
	return fmt.Sprintf("SealStatusCode(%d)", c)
}

// SealStatus is the observable state of a sector. Sealed is only set for
// StatusSealed, Error only for StatusFailed.
type SealStatus struct {
	Code   SealStatusCode
	Sealed *SealedSectorMetadata `cbor:",omitempty"`
	Error  string                `cbor:",omitempty"`
}

func (s SealStatus) String() string {
	switch s.Code {
	case StatusFailed:
		return fmt.Sprintf("Failed(%s)", s.Error)
	default:
		return s.Code.String()
	}
}

func Pending() SealStatus { return SealStatus{Code: StatusPending} }
func Sealing() SealStatus { return SealStatus{Code: StatusSealing} }

func Sealed(meta SealedSectorMetadata) SealStatus {
	return SealStatus{Code: StatusSealed, Sealed: &meta}
}

func Failed(msg string) SealStatus {
	return SealStatus{Code: StatusFailed, Error: msg}
}
