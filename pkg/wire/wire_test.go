package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReaderWriterRoundTrip(t *testing.T) {
	w := NewWriter()
	w.PutUint8(7)
	w.PutUint16(1234)
	w.PutUint32(Infinite)
	w.PutUint64(NoVal64)
	w.PutFloat64(3.14159)
	w.PutStringOrNull("hello")
	w.PutString("", false)
	w.PutBytes([]byte{1, 2, 3})
	w.PutArrayCount(2)

	r := NewReader(w.Bytes())

	u8, err := r.Uint8()
	require.NoError(t, err)
	assert.EqualValues(t, 7, u8)

	u16, err := r.Uint16()
	require.NoError(t, err)
	assert.EqualValues(t, 1234, u16)

	u32, err := r.Uint32()
	require.NoError(t, err)
	assert.Equal(t, Infinite, u32)

	u64, err := r.Uint64()
	require.NoError(t, err)
	assert.Equal(t, NoVal64, u64)

	f, err := r.Float64()
	require.NoError(t, err)
	assert.InDelta(t, 3.14159, f, 0.00001)

	s, ok, err := r.String()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "hello", s)

	_, ok, err = r.String()
	require.NoError(t, err)
	assert.False(t, ok)

	b, err := r.Bytes()
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, b)

	count, err := r.ArrayCount()
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)

	assert.Zero(t, r.Remaining())
}

func TestTryDecodeFrameNeedsMoreBytes(t *testing.T) {
	_, consumed, err := TryDecodeFrame([]byte{0, 40})
	assert.ErrorIs(t, err, ErrNeedMoreBytes)
	assert.Zero(t, consumed)
}

func TestFrameRoundTrip(t *testing.T) {
	orig := Message{
		Version:        CurrentProtocolVersion,
		Type:           RPCRequestJobInfo,
		Body:           []byte{0xDE, 0xAD, 0xBE, 0xEF},
		ProviderID:     1,
		CredentialBody: []byte("signed-blob"),
	}

	encoded := EncodeFrame(orig)
	decoded, consumed, err := TryDecodeFrame(encoded)
	require.NoError(t, err)
	assert.Equal(t, len(encoded), consumed)
	assert.Equal(t, orig.Version, decoded.Version)
	assert.Equal(t, orig.Type, decoded.Type)
	assert.Equal(t, orig.Body, decoded.Body)
	assert.Equal(t, orig.ProviderID, decoded.ProviderID)
	assert.Equal(t, orig.CredentialBody, decoded.CredentialBody)
}

func TestFrameNeedsMoreBytesOnPartialCredential(t *testing.T) {
	orig := Message{
		Version:        CurrentProtocolVersion,
		Type:           RPCRequestNodeInfo,
		Body:           []byte("partial-body-test"),
		ProviderID:     2,
		CredentialBody: []byte("cred"),
	}
	encoded := EncodeFrame(orig)

	_, consumed, err := TryDecodeFrame(encoded[:len(encoded)-3])
	assert.ErrorIs(t, err, ErrNeedMoreBytes)
	assert.Zero(t, consumed)
}

func TestFrameRejectsOversizedBody(t *testing.T) {
	buf := make([]byte, 6)
	buf[0] = 0
	buf[1] = byte(CurrentProtocolVersion)
	buf[2] = 0xFF
	buf[3] = 0xFF
	buf[4] = 0xFF
	buf[5] = 0xFF

	_, _, err := TryDecodeFrame(buf)
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestFrameRejectsUnsupportedVersion(t *testing.T) {
	orig := Message{
		Version: MinProtocolVersion - 1,
		Type:    RPCRequestPartitionInfo,
		Body:    []byte{1, 2, 3, 4},
	}
	encoded := EncodeFrame(orig)
	_, _, err := TryDecodeFrame(encoded)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestSackFrameRoundTrip(t *testing.T) {
	orig := SackFrame{
		Version: 1,
		RPCID:   SackCreate,
		Body:    []byte("request-body"),
	}
	encoded := EncodeSackFrame(orig)
	decoded, consumed, err := TryDecodeSackFrame(encoded)
	require.NoError(t, err)
	assert.Equal(t, len(encoded), consumed)
	assert.Equal(t, orig, decoded)
}

func TestSackFrameNeedsMoreBytes(t *testing.T) {
	orig := SackFrame{Version: 1, RPCID: SackVerify, Body: []byte("0123456789")}
	encoded := EncodeSackFrame(orig)
	_, consumed, err := TryDecodeSackFrame(encoded[:len(encoded)-2])
	assert.ErrorIs(t, err, ErrNeedMoreBytes)
	assert.Zero(t, consumed)
}

func TestJobInfoRoundTrip(t *testing.T) {
	orig := JobInfo{
		JobID:         42,
		ArrayJobID:    NoVal,
		UserID:        1000,
		GroupID:       1000,
		Account:       "physics",
		Partition:     "gpu",
		Name:          "train",
		State:         3,
		SubmitTime:    1700000000,
		EndTime:       0,
		TimeLimitMinutes: Infinite,
		PnMinMemory:   (4096) | MemPerCPUFlag,
		CoreSpec:      2 | CoreSpecThread,
		NodeList:      "node[01-04]",
	}

	body := EncodeJobInfo(orig)
	decoded, err := DecodeJobInfo(body)
	require.NoError(t, err)
	assert.Equal(t, orig, decoded)
	assert.True(t, decoded.IsPerCPU())
	assert.True(t, decoded.IsThreadSpec())
}

func TestJobUpdateSentinelsSurviveRoundTrip(t *testing.T) {
	orig := JobUpdate{
		JobID:            7,
		ArrayTaskID:      NoVal,
		Name:             "",
		NameSet:          false,
		Partition:        "batch",
		PartitionSet:     true,
		TimeLimitMinutes: NoVal,
		Priority:         NoVal,
		Nice:             NoVal,
		MinNodes:         NoVal,
		MaxNodes:         NoVal,
		Requeue:          NoVal16,
	}

	body := EncodeJobUpdate(orig)
	decoded, err := DecodeJobUpdate(body)
	require.NoError(t, err)
	assert.Equal(t, orig, decoded)
	assert.False(t, decoded.NameSet)
	assert.True(t, decoded.PartitionSet)
	assert.Equal(t, NoVal, decoded.TimeLimitMinutes)
}

func TestResponseRcRoundTrip(t *testing.T) {
	body := EncodeResponseRc(SlurmNoChangeInData)
	decoded, err := DecodeResponseRc(body)
	require.NoError(t, err)
	assert.Equal(t, SlurmNoChangeInData, decoded.Rc)
}
