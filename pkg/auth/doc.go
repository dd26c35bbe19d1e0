// Package auth implements the pluggable credential abstraction control-plane
// messages carry: a Provider mints and verifies Credentials, each variant
// dispatched by a wire-level provider id. Two concrete providers are
// supplied: a shared-secret MAC-cookie (mirroring the original daemon's
// SACK token) and an HMAC-signed bearer token in the style of a JWT.
//
// Provider state is process-global and read-mostly: Registry's RWMutex
// lets many goroutines verify concurrently while a reconfiguration (key
// rotation, provider swap) takes the writer side and blocks new verifies
// until it completes.
package auth
