package common

import "time"

// ManageTokenHeaderName is the HTTP header carrying the uploader's manage
// token on delete and TTL extension requests.
const ManageTokenHeaderName = "X-Manage-Token"

// RequestIDHeaderName is echoed back on every HTTP response.
const RequestIDHeaderName = "X-Request-ID"

// Sharing limits.
const (
	MaxTTL          = 168 * time.Hour
	MinTTLHours     = 1
	MaxTTLHours     = 168
	MinDownloads    = 1
	MaxDownloads    = 1000
	MaxUploadSize   = 100 * 1024 * 1024
	MinPasswordLen  = 8
	DefaultTTLHours = 24
)
