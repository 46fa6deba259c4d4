package client

import (
	"context"
	"time"

	"golang.org/x/xerrors"

	"github.com/filecoin-project/filbase/api"
)

func (c *Client) PostGenerate(ctx context.Context, commRs []api.Commitment, seed api.ChallengeSeed) (*api.PostGenerateResponse, error) {
	return do[*api.PostGenerateResponse](ctx, c, &api.PostGenerateRequest{CommRs: commRs, ChallengeSeed: seed})
}

func (c *Client) PostVerify(ctx context.Context, req *api.PostVerifyRequest) (bool, error) {
	resp, err := do[*api.PostVerifyResponse](ctx, c, req)
	if err != nil {
		return false, err
	}
	return resp.Valid, nil
}

func (c *Client) SealVerify(ctx context.Context, req *api.SealVerifyRequest) (bool, error) {
	resp, err := do[*api.SealVerifyResponse](ctx, c, req)
	if err != nil {
		return false, err
	}
	return resp.Valid, nil
}

func (c *Client) SealAllStaged(ctx context.Context) error {
	_, err := do[*api.SealAllStagedResponse](ctx, c, &api.SealAllStagedRequest{})
	return err
}

func (c *Client) SealStatus(ctx context.Context, sectorID uint64) (api.SealStatus, error) {
	resp, err := do[*api.SealStatusResponse](ctx, c, &api.SealStatusRequest{SectorID: sectorID})
	if err != nil {
		return api.SealStatus{}, err
	}
	return resp.Status, nil
}

func (c *Client) SectorSize(ctx context.Context, size uint64) (uint64, error) {
	resp, err := do[*api.SectorSizeResponse](ctx, c, &api.SectorSizeRequest{SectorSize: size})
	if err != nil {
		return 0, err
	}
	return resp.Size, nil
}

func (c *Client) SealedSectors(ctx context.Context) ([]api.SealedSectorMetadata, error) {
	resp, err := do[*api.SectorListSealedResponse](ctx, c, &api.SectorListSealedRequest{})
	if err != nil {
		return nil, err
	}
	return resp.Sectors, nil
}

func (c *Client) StagedSectors(ctx context.Context) ([]api.StagedSectorMetadata, error) {
	resp, err := do[*api.SectorListStagedResponse](ctx, c, &api.SectorListStagedRequest{})
	if err != nil {
		return nil, err
	}
	return resp.Sectors, nil
}

// PieceAdd stages the file at path. A nil amount stages the whole file.
func (c *Client) PieceAdd(ctx context.Context, key string, amount *uint64, path string) (uint64, error) {
	resp, err := do[*api.PieceAddResponse](ctx, c, &api.PieceAddRequest{Key: key, Amount: amount, Path: path})
	if err != nil {
		return 0, err
	}
	return resp.SectorID, nil
}

func (c *Client) PieceRead(ctx context.Context, key string) ([]byte, error) {
	resp, err := do[*api.PieceReadResponse](ctx, c, &api.PieceReadRequest{Key: key})
	if err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// WaitSealed polls the seal status of a sector until it is Sealed or
// Failed. A Failed status is returned as an error.
func (c *Client) WaitSealed(ctx context.Context, sectorID uint64, interval time.Duration) (api.SealStatus, error) {
	tick := time.NewTicker(interval)
	defer tick.Stop()

	for {
		status, err := c.SealStatus(ctx, sectorID)
		if err != nil {
			return api.SealStatus{}, err
		}

		log.Debugf("sector %d has status %s", sectorID, status.Code)
		switch status.Code {
		case api.StatusSealed:
			return status, nil
		case api.StatusFailed:
			return status, xerrors.Errorf("sealing sector %d failed: %s: %w", sectorID, status.Error, api.ErrProof)
		}

		select {
		case <-tick.C:
		case <-ctx.Done():
			return status, ctx.Err()
		}
	}
}
