package models

import (
	"unicode/utf8"

	"github.com/dmitrijs2005/zkshare/internal/common"
)

func ValidateTTLHours(hours int) error {
	if hours < common.MinTTLHours || hours > common.MaxTTLHours {
		return common.NewValidationError("ttlHours", "must be between %d and %d", common.MinTTLHours, common.MaxTTLHours)
	}
	return nil
}

func ValidateMaxDownloads(n int) error {
	if n < common.MinDownloads || n > common.MaxDownloads {
		return common.NewValidationError("maxDownloads", "must be between %d and %d", common.MinDownloads, common.MaxDownloads)
	}
	return nil
}

// ValidateFileSize checks a plaintext size against the upload limit.
func ValidateFileSize(n int64) error {
	if n <= 0 {
		return common.NewValidationError("file", "must not be empty")
	}
	if n > common.MaxUploadSize {
		return common.NewValidationError("file", "must not exceed %d bytes", common.MaxUploadSize)
	}
	return nil
}

// ValidatePassword counts characters, not bytes.
func ValidatePassword(password string) error {
	if utf8.RuneCountInString(password) < common.MinPasswordLen {
		return common.NewValidationError("password", "must be at least %d characters", common.MinPasswordLen)
	}
	return nil
}
