package api

import (
	"github.com/fxamacker/cbor/v2"
	"golang.org/x/xerrors"
)

// envelope is the wire form of every message: a two element array of the
// variant tag and the CBOR encoded variant body.
type envelope struct {
	_    struct{} `cbor:",toarray"`
	Kind Kind
	Body cbor.RawMessage
}

func marshalEnvelope(k Kind, v interface{}) ([]byte, error) {
	body, err := cbor.Marshal(v)
	if err != nil {
		return nil, xerrors.Errorf("encoding %s body: %w", k, err)
	}
	return cbor.Marshal(envelope{Kind: k, Body: body})
}

func unmarshalEnvelope(b []byte) (envelope, error) {
	var env envelope
	if err := cbor.Unmarshal(b, &env); err != nil {
		return envelope{}, xerrors.Errorf("decoding envelope: %w", err)
	}
	return env, nil
}

// RequestEnvelope adapts a Request to the frame codec.
type RequestEnvelope struct {
	Request Request
}

func (e *RequestEnvelope) MarshalCBOR() ([]byte, error) {
	if e.Request == nil {
		return nil, xerrors.New("cannot encode nil request")
	}
	return marshalEnvelope(e.Request.Kind(), e.Request)
}

func (e *RequestEnvelope) UnmarshalCBOR(b []byte) error {
	env, err := unmarshalEnvelope(b)
	if err != nil {
		return err
	}
	req := newRequest(env.Kind)
	if req == nil {
		return xerrors.Errorf("unknown request kind %d", env.Kind)
	}
	if err := cbor.Unmarshal(env.Body, req); err != nil {
		return xerrors.Errorf("decoding %s request: %w", env.Kind, err)
	}
	e.Request = req
	return nil
}

// ResponseEnvelope adapts a Response to the frame codec.
type ResponseEnvelope struct {
	Response Response
}

func (e *ResponseEnvelope) MarshalCBOR() ([]byte, error) {
	if e.Response == nil {
		return nil, xerrors.New("cannot encode nil response")
	}
	return marshalEnvelope(e.Response.Kind(), e.Response)
}

func (e *ResponseEnvelope) UnmarshalCBOR(b []byte) error {
	env, err := unmarshalEnvelope(b)
	if err != nil {
		return err
	}
	resp := newResponse(env.Kind)
	if resp == nil {
		return xerrors.Errorf("unknown response kind %d", env.Kind)
	}
	if err := cbor.Unmarshal(env.Body, resp); err != nil {
		return xerrors.Errorf("decoding %s response: %w", env.Kind, err)
	}
	e.Response = resp
	return nil
}
