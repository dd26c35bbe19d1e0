package wire

import "encoding/binary"

// sackHeaderSize is version(2) + length(4).
const sackHeaderSize = 6

// SackRPCID identifies a SackDaemon request/response body.
type SackRPCID uint32

const (
	SackCreate SackRPCID = iota + 1
	SackCreateResponse
	SackVerify
	SackVerifyResponse
)

// SackFrame is a decoded SackDaemon request/response: the bare
// [version][rpc_id][body] framing used on the local credential socket,
// distinct from the TCP control-RPC frame in Message.
type SackFrame struct {
	Version uint16
	RPCID   SackRPCID
	Body    []byte
}

// TryDecodeSackFrame splits one complete SACK frame off the front of buf.
//
// Layout: [u16 version][u32 length][u32 rpc_id][body...]
// length covers only rpc_id and body, not version.
func TryDecodeSackFrame(buf []byte) (frame SackFrame, consumed int, err error) {
	if len(buf) < sackHeaderSize {
		return SackFrame{}, 0, ErrNeedMoreBytes
	}

	version := binary.BigEndian.Uint16(buf[0:2])
	length := binary.BigEndian.Uint32(buf[2:6])

	if length > MaxBodySize {
		return SackFrame{}, 0, ErrTooLarge
	}
	if length < 4 {
		return SackFrame{}, 0, ErrMalformed
	}

	total := sackHeaderSize + int(length)
	if len(buf) < total {
		return SackFrame{}, 0, ErrNeedMoreBytes
	}

	rest := buf[sackHeaderSize:total]
	rpcID := binary.BigEndian.Uint32(rest[0:4])
	body := append([]byte(nil), rest[4:]...)

	frame = SackFrame{
		Version: version,
		RPCID:   SackRPCID(rpcID),
		Body:    body,
	}
	return frame, total, nil
}

// EncodeSackFrame renders frame back onto the wire.
func EncodeSackFrame(frame SackFrame) []byte {
	length := 4 + len(frame.Body)

	w := NewWriter()
	w.PutUint16(frame.Version)
	w.PutUint32(uint32(length))
	w.PutUint32(uint32(frame.RPCID))
	w.buf = append(w.buf, frame.Body...)
	return w.Bytes()
}

// SackCreateRequest is the body of a SackCreate RPC.
type SackCreateRequest struct {
	RecipientUID uint32
	Payload      []byte
}

func EncodeSackCreateRequest(req SackCreateRequest) []byte {
	w := NewWriter()
	w.PutUint32(req.RecipientUID)
	w.PutBytes(req.Payload)
	return w.Bytes()
}

func DecodeSackCreateRequest(body []byte) (SackCreateRequest, error) {
	r := NewReader(body)
	uid, err := r.Uint32()
	if err != nil {
		return SackCreateRequest{}, err
	}
	payload, err := r.Bytes()
	if err != nil {
		return SackCreateRequest{}, err
	}
	return SackCreateRequest{RecipientUID: uid, Payload: payload}, nil
}

// SackCreateResponseBody is the body of a SackCreateResponse RPC.
type SackCreateResponseBody struct {
	Token string
}

func EncodeSackCreateResponse(resp SackCreateResponseBody) []byte {
	w := NewWriter()
	w.PutStringOrNull(resp.Token)
	return w.Bytes()
}

func DecodeSackCreateResponse(body []byte) (SackCreateResponseBody, error) {
	r := NewReader(body)
	token, _, err := r.String()
	if err != nil {
		return SackCreateResponseBody{}, err
	}
	return SackCreateResponseBody{Token: token}, nil
}

// SackVerifyRequest is the body of a SackVerify RPC.
type SackVerifyRequest struct {
	Token string
}

func EncodeSackVerifyRequest(req SackVerifyRequest) []byte {
	w := NewWriter()
	w.PutStringOrNull(req.Token)
	return w.Bytes()
}

func DecodeSackVerifyRequest(body []byte) (SackVerifyRequest, error) {
	r := NewReader(body)
	token, _, err := r.String()
	if err != nil {
		return SackVerifyRequest{}, err
	}
	return SackVerifyRequest{Token: token}, nil
}

// EncodeSackVerifyResponse renders the big-endian u32 result code.
func EncodeSackVerifyResponse(rc uint32) []byte {
	w := NewWriter()
	w.PutUint32(rc)
	return w.Bytes()
}

func DecodeSackVerifyResponse(body []byte) (uint32, error) {
	r := NewReader(body)
	return r.Uint32()
}
