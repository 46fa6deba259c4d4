package api

// Kind tags the variant of a Request or Response on the wire. A success
// response carries the same kind as the request it answers.
type Kind uint8

const (
	KindPostGenerate Kind = iota + 1
	KindPostVerify
	KindSealVerify
	KindSealAllStaged
	KindSealStatus
	KindSectorSize
	KindSectorListSealed
	KindSectorListStaged
	KindPieceAdd
	KindPieceRead

	// KindErr is only valid for responses.
	KindErr Kind = 0xff
)

var kindNames = map[Kind]string{
	KindPostGenerate:     "PostGenerate",
	KindPostVerify:       "PostVerify",
	KindSealVerify:       "SealVerify",
	KindSealAllStaged:    "SealAllStaged",
	KindSealStatus:       "SealStatus",
	KindSectorSize:       "SectorSize",
	KindSectorListSealed: "SectorListSealed",
	KindSectorListStaged: "SectorListStaged",
	KindPieceAdd:         "PieceAdd",
	KindPieceRead:        "PieceRead",
	KindErr:              "Err",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "Unknown"
}

// Request is one command sent by a client. The set of implementations is
// closed; see the Kind constants.
type Request interface {
	Kind() Kind
}

type PostGenerateRequest struct {
	CommRs        []Commitment
	ChallengeSeed ChallengeSeed
}

type PostVerifyRequest struct {
	SectorSize      uint64
	ProofPartitions uint8
	CommRs          []Commitment
	ChallengeSeed   ChallengeSeed
	Proofs          [][]byte
	Faults          []uint64
}

type SealVerifyRequest struct {
	SectorSize uint64
	CommR      Commitment
	CommD      Commitment
	CommRStar  Commitment
	ProverID   ProverID
	SectorID   SectorIDBytes
	Proof      []byte
}

type SealAllStagedRequest struct{}

type SealStatusRequest struct {
	SectorID uint64
}

type SectorSizeRequest struct {
	SectorSize uint64
}

type SectorListSealedRequest struct{}

type SectorListStagedRequest struct{}

// PieceAddRequest stages the file at Path under Key. A nil Amount means
// the whole file.
type PieceAddRequest struct {
	Key    string
	Amount *uint64
	Path   string
}

type PieceReadRequest struct {
	Key string
}

func (*PostGenerateRequest) Kind() Kind     { return KindPostGenerate }
func (*PostVerifyRequest) Kind() Kind       { return KindPostVerify }
func (*SealVerifyRequest) Kind() Kind       { return KindSealVerify }
func (*SealAllStagedRequest) Kind() Kind    { return KindSealAllStaged }
func (*SealStatusRequest) Kind() Kind       { return KindSealStatus }
func (*SectorSizeRequest) Kind() Kind       { return KindSectorSize }
func (*SectorListSealedRequest) Kind() Kind { return KindSectorListSealed }
func (*SectorListStagedRequest) Kind() Kind { return KindSectorListStaged }
func (*PieceAddRequest) Kind() Kind         { return KindPieceAdd }
func (*PieceReadRequest) Kind() Kind        { return KindPieceRead }

func newRequest(k Kind) Request {
	switch k {
	case KindPostGenerate:
		return new(PostGenerateRequest)
	case KindPostVerify:
		return new(PostVerifyRequest)
	case KindSealVerify:
		return new(SealVerifyRequest)
	case KindSealAllStaged:
		return new(SealAllStagedRequest)
	case KindSealStatus:
		return new(SealStatusRequest)
	case KindSectorSize:
		return new(SectorSizeRequest)
	case KindSectorListSealed:
		return new(SectorListSealedRequest)
	case KindSectorListStaged:
		return new(SectorListStagedRequest)
	case KindPieceAdd:
		return new(PieceAddRequest)
	case KindPieceRead:
		return new(PieceReadRequest)
	default:
		return nil
	}
}
