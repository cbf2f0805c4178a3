// Package client is the transport half of the zkshare CLI: a thin JSON over
// HTTP client for the share server API.
//
// Only ciphertext, IVs and public salts ever pass through this package. Key
// material and link fragments stay in the services layer.
//
// Error responses are mapped back to the shared errors in internal/common
// (ValidationError, LifecycleError, ErrorNotFound, ErrInvalidToken, ...), so
// callers match them with errors.Is / errors.As. Network failures and 5xx
// responses wrap ErrUnavailable.
package client
