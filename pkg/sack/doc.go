// Package sack implements the local credential-issuance daemon: a
// process-local UNIX socket that mints and verifies auth credentials on
// behalf of unprivileged callers using kernel peer-credential
// introspection (SO_PEERCRED) instead of a wire-level AuthProvider
// handshake.
//
// It is grounded directly on the original daemon's sack.c and sackd.c:
// the /run/slurm directory bootstrap rules, the socket's 0777 mode
// (security is enforced by the kernel telling us who is really on the
// other end, not by filesystem permissions), and the two-RPC wire
// protocol (SackCreate, SackVerify) are a deliberate translation of that
// C implementation's behavior, not a reinterpretation of it.
package sack
