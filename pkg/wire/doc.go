// Package wire implements the hand-rolled, length-prefixed binary framing
// used by control-plane RPCs, plus the tagged encode/decode primitives its
// messages are built from.
//
// A frame on a TCP or UNIX control socket looks like:
//
//	[u16 version][u32 body_length][u32 rpc_type][body...][u32 provider_id][provider bytes]
//
// body_length covers rpc_type and body but not version. Strings are
// length-prefixed ([u32 len][bytes]) with len=0xFFFFFFFF meaning "null string";
// arrays are [u32 count][element * count]; integers are network byte order;
// floats are IEEE-754 big-endian. This package never depends on Conmgr or
// ControlProtocol: it only turns bytes into typed values and back.
package wire
