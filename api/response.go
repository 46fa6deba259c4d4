package api

// Response answers exactly one Request. Success variants share the Kind of
// their request; any failure is an *ErrResponse.
type Response interface {
	Kind() Kind
}

type PostGenerateResponse struct {
	Proofs [][]byte
	Faults []uint64
}

type PostVerifyResponse struct {
	Valid bool
}

type SealVerifyResponse struct {
	Valid bool
}

type SealAllStagedResponse struct{}

type SealStatusResponse struct {
	Status SealStatus
}

type SectorSizeResponse struct {
	Size uint64
}

type SectorListSealedResponse struct {
	Sectors []SealedSectorMetadata
}

type SectorListStagedResponse struct {
	Sectors []StagedSectorMetadata
}

type PieceAddResponse struct {
	SectorID uint64
}

type PieceReadResponse struct {
	Data []byte
}

// ErrResponse carries the description of a failed request. It is the
// only form in which errors reach a client.
type ErrResponse struct {
	Message string
}

func (e *ErrResponse) Error() string {
	return e.Message
}

func (*PostGenerateResponse) Kind() Kind     { return KindPostGenerate }
func (*PostVerifyResponse) Kind() Kind       { return KindPostVerify }
func (*SealVerifyResponse) Kind() Kind       { return KindSealVerify }
func (*SealAllStagedResponse) Kind() Kind    { return KindSealAllStaged }
func (*SealStatusResponse) Kind() Kind       { return KindSealStatus }
func (*SectorSizeResponse) Kind() Kind       { return KindSectorSize }
func (*SectorListSealedResponse) Kind() Kind { return KindSectorListSealed }
func (*SectorListStagedResponse) Kind() Kind { return KindSectorListStaged }
func (*PieceAddResponse) Kind() Kind         { return KindPieceAdd }
func (*PieceReadResponse) Kind() Kind        { return KindPieceRead }
func (*ErrResponse) Kind() Kind              { return KindErr }

func newResponse(k Kind) Response {
	switch k {
	case KindPostGenerate:
		return new(PostGenerateResponse)
	case KindPostVerify:
		return new(PostVerifyResponse)
	case KindSealVerify:
		return new(SealVerifyResponse)
	case KindSealAllStaged:
		return new(SealAllStagedResponse)
	case KindSealStatus:
		return new(SealStatusResponse)
	case KindSectorSize:
		return new(SectorSizeResponse)
	case KindSectorListSealed:
		return new(SectorListSealedResponse)
	case KindSectorListStaged:
		return new(SectorListStagedResponse)
	case KindPieceAdd:
		return new(PieceAddResponse)
	case KindPieceRead:
		return new(PieceReadResponse)
	case KindErr:
		return new(ErrResponse)
	default:
		return nil
	}
}
