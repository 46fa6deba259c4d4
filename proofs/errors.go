package proofs

import (
	"errors"

	"golang.org/x/xerrors"

	"github.com/filecoin-project/filbase/api"
)

var kinds = []error{api.ErrInvalidArgument, api.ErrNotFound, api.ErrProof, api.ErrState, api.ErrIO}

// WrapErr annotates an error returned by a Prover or Verifier. Errors that
// already carry a kind keep it, anything else becomes api.ErrProof with the
// library's message.
func WrapErr(op string, err error) error {
	for _, k := range kinds {
		if errors.Is(err, k) {
			return xerrors.Errorf("%s: %w", op, err)
		}
	}
	return xerrors.Errorf("%s: %s: %w", op, err, api.ErrProof)
}
