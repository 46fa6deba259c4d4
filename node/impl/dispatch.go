package impl

import (
	"context"

	"golang.org/x/xerrors"

	"github.com/filecoin-project/filbase/api"
)

// Dispatch runs req and returns its success response, or the typed error
// that caused it to fail.
func (sa *SectorAPI) Dispatch(ctx context.Context, req api.Request) (api.Response, error) {
	switch r := req.(type) {
	case *api.PostGenerateRequest:
		return wrap(sa.PostGenerate(ctx, r))
	case *api.PostVerifyRequest:
		return wrap(sa.PostVerify(ctx, r))
	case *api.SealVerifyRequest:
		return wrap(sa.SealVerify(ctx, r))
	case *api.SealAllStagedRequest:
		return wrap(sa.SealAllStaged(ctx, r))
	case *api.SealStatusRequest:
		return wrap(sa.SealStatus(ctx, r))
	case *api.SectorSizeRequest:
		return wrap(sa.SectorSize(ctx, r))
	case *api.SectorListSealedRequest:
		return wrap(sa.SectorListSealed(ctx, r))
	case *api.SectorListStagedRequest:
		return wrap(sa.SectorListStaged(ctx, r))
	case *api.PieceAddRequest:
		return wrap(sa.PieceAdd(ctx, r))
	case *api.PieceReadRequest:
		return wrap(sa.PieceRead(ctx, r))
	default:
		return nil, xerrors.Errorf("unhandled request type %T: %w", req, api.ErrInvalidArgument)
	}
}

// wrap keeps a typed nil response from escaping as a non-nil interface.
func wrap[R api.Response](resp R, err error) (api.Response, error) {
	if err != nil {
		return nil, err
	}
	return resp, nil
}
