package wire

import (
	"encoding/binary"
)

// frameHeaderSize is version(2) + body_length(4).
const frameHeaderSize = 6

// Message is a decoded control-plane RPC: version, type, the raw body
// bytes (still tagged-encoded, handed to a per-type decoder by
// ControlProtocol), and the credential bytes that rode along on the wire.
// Messages are immutable once decoded.
type Message struct {
	Version        uint16
	Type           RPCType
	Body           []byte
	ProviderID     uint32
	CredentialBody []byte
}

// ResponseRc is the generic status response: a single numeric result code.
type ResponseRc struct {
	Rc uint32
}

// EncodeResponseRc renders rc as a ResponseRc body.
func EncodeResponseRc(rc uint32) []byte {
	w := NewWriter()
	w.PutUint32(rc)
	return w.Bytes()
}

// DecodeResponseRc parses a ResponseRc body.
func DecodeResponseRc(body []byte) (ResponseRc, error) {
	r := NewReader(body)
	rc, err := r.Uint32()
	if err != nil {
		return ResponseRc{}, err
	}
	return ResponseRc{Rc: rc}, nil
}

// TryDecodeFrame attempts to split one complete frame off the front of
// buf. It returns (msg, consumed, nil) on success, (Message{}, 0,
// ErrNeedMoreBytes) if buf does not yet hold a whole frame, or a non-nil
// error for anything that requires the Connection to close.
//
// Frame layout: [u16 version][u32 body_length][u32 rpc_type][body...][u32 provider_id][u32 credlen][cred bytes]
// body_length covers rpc_type and body but not version, and not the
// trailing provider_id/credential (per §6: those ride outside the
// length-delimited region).
func TryDecodeFrame(buf []byte) (msg Message, consumed int, err error) {
	if len(buf) < frameHeaderSize {
		return Message{}, 0, ErrNeedMoreBytes
	}

	version := binary.BigEndian.Uint16(buf[0:2])
	bodyLength := binary.BigEndian.Uint32(buf[2:6])

	if bodyLength > MaxBodySize {
		return Message{}, 0, ErrTooLarge
	}
	if bodyLength < 4 {
		// body_length must at least cover the rpc_type field.
		return Message{}, 0, ErrMalformed
	}

	bodyEnd := frameHeaderSize + int(bodyLength)
	if len(buf) < bodyEnd {
		return Message{}, 0, ErrNeedMoreBytes
	}
	if err := checkVersion(version); err != nil {
		return Message{}, 0, err
	}

	frame := buf[frameHeaderSize:bodyEnd]
	rpcType := binary.BigEndian.Uint32(frame[0:4])
	body := frame[4:]

	r := NewReader(buf[bodyEnd:])
	providerID, err := r.Uint32()
	if err != nil {
		return Message{}, 0, err
	}
	credBody, err := r.Bytes()
	if err != nil {
		return Message{}, 0, err
	}

	total := bodyEnd + r.pos

	msg = Message{
		Version:        version,
		Type:           RPCType(rpcType),
		Body:           append([]byte(nil), body...),
		ProviderID:     providerID,
		CredentialBody: credBody,
	}
	return msg, total, nil
}

// EncodeFrame renders msg back onto the wire in the same layout
// TryDecodeFrame expects: body_length covers only rpc_type+body, with
// provider_id/credential following outside that length-delimited region.
func EncodeFrame(msg Message) []byte {
	bodyWriter := NewWriter()
	bodyWriter.PutUint32(uint32(msg.Type))
	bodyWriter.buf = append(bodyWriter.buf, msg.Body...)
	frameBody := bodyWriter.Bytes()

	out := NewWriter()
	out.PutUint16(msg.Version)
	out.PutUint32(uint32(len(frameBody)))
	out.buf = append(out.buf, frameBody...)
	out.PutUint32(msg.ProviderID)
	out.PutBytes(msg.CredentialBody)
	return out.Bytes()
}
