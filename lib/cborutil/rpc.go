package cborutil

import (
	"bytes"
	"encoding/hex"
	"errors"
	"io"

	"github.com/fxamacker/cbor/v2"
	logging "github.com/ipfs/go-log/v2"
	"github.com/libp2p/go-msgio"
	"github.com/multiformats/go-varint"
	"golang.org/x/xerrors"
)

var log = logging.Logger("cborrpc")

const Debug = false

// DefaultMaxMessageSize bounds the payload of a single frame. A sealed
// piece read back in one response must fit.
const DefaultMaxMessageSize = 256 << 20

// ErrFraming is returned when a frame is oversized or its payload does not
// decode. The stream cannot be resynchronised after it.
var ErrFraming = errors.New("framing error")

func init() {
	if Debug {
		log.Warn("CBOR-RPC Debugging enabled")
	}
}

// WriteCborRPC writes obj as a single varint length-prefixed frame.
func WriteCborRPC(w msgio.Writer, obj interface{}) error {
	data, err := cbor.Marshal(obj)
	if err != nil {
		return xerrors.Errorf("encoding frame: %w", err)
	}

	if Debug {
		log.Infof("> %s", hex.EncodeToString(data))
	}

	return w.WriteMsg(data)
}

// ReadCborRPC blocks until a whole frame is available and decodes it into
// out. A clean close between frames is reported as io.EOF.
func ReadCborRPC(r msgio.Reader, out interface{}) error {
	msg, err := r.ReadMsg()
	switch {
	case errors.Is(err, msgio.ErrMsgTooLarge):
		return xerrors.Errorf("%s: %w", err, ErrFraming)
	case err != nil:
		return err
	}
	defer r.ReleaseMsg(msg)

	if Debug {
		log.Infof("< %s", hex.EncodeToString(msg))
	}

	if err := cbor.Unmarshal(msg, out); err != nil {
		return xerrors.Errorf("%s: %w", err, ErrFraming)
	}
	return nil
}

// Dump returns the framed encoding of obj.
func Dump(obj interface{}) ([]byte, error) {
	var out bytes.Buffer
	if err := WriteCborRPC(msgio.NewVarintWriter(&out), obj); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// FrameLen reports the payload length declared by the prefix of frame and
// the number of bytes the prefix occupies.
func FrameLen(frame []byte) (uint64, int, error) {
	n, sz, err := varint.FromUvarint(frame)
	if err != nil {
		return 0, 0, xerrors.Errorf("%s: %w", err, ErrFraming)
	}
	return n, sz, nil
}

// Stream carries frames in both directions over one connection.
type Stream struct {
	r msgio.ReadCloser
	w msgio.WriteCloser
	c io.Closer
}

func NewStream(rwc io.ReadWriteCloser, maxSize int) *Stream {
	if maxSize <= 0 {
		maxSize = DefaultMaxMessageSize
	}
	return &Stream{
		r: msgio.NewVarintReaderSize(rwc, maxSize),
		w: msgio.NewVarintWriter(rwc),
		c: rwc,
	}
}

func (s *Stream) Read(out interface{}) error {
	return ReadCborRPC(s.r, out)
}

func (s *Stream) Write(obj interface{}) error {
	return WriteCborRPC(s.w, obj)
}

func (s *Stream) Close() error {
	return s.c.Close()
}
