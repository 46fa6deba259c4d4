package api

import (
	"errors"

	"github.com/filecoin-project/filbase/lib/cborutil"
)

// Error kinds surfaced by the service. Producers wrap one of these with
// xerrors.Errorf("...: %w", kind); callers branch with errors.Is. None of
// them cross the wire: the connection handler sends only the message.
var (
	// ErrFraming marks a malformed or oversized frame. It terminates the
	// connection it was read from.
	ErrFraming = cborutil.ErrFraming

	ErrInvalidArgument = errors.New("invalid argument")
	ErrNotFound        = errors.New("not found")
	ErrProof           = errors.New("proof error")
	ErrState           = errors.New("sector state error")
	ErrIO              = errors.New("io error")
)
