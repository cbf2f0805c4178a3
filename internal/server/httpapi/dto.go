package httpapi

import (
	"time"

	"github.com/dmitrijs2005/zkshare/internal/server/services"
)

// Byte slices travel as standard base64 strings, which is how encoding/json
// renders []byte.

type uploadRequest struct {
	EncryptedBlob []byte `json:"encryptedBlob"`
	IV            []byte `json:"iv"`
	TTLHours      *int   `json:"ttlHours"`
	MaxDownloads  *int   `json:"maxDownloads"`
	Salt          []byte `json:"salt,omitempty"`
}

type uploadResponse struct {
	FileID      string    `json:"fileId"`
	ShareURL    string    `json:"shareUrl"`
	ExpiresAt   time.Time `json:"expiresAt"`
	ManageToken string    `json:"manageToken"`
}

type downloadResponse struct {
	FileID             string    `json:"fileId"`
	EncryptedBlob      []byte    `json:"encryptedBlob,omitempty"`
	BlobURL            string    `json:"blobUrl,omitempty"`
	IV                 []byte    `json:"iv"`
	Salt               []byte    `json:"salt,omitempty"`
	Size               int64     `json:"size"`
	ExpiresAt          time.Time `json:"expiresAt"`
	RemainingDownloads int       `json:"remainingDownloads"`
	DownloadCount      int       `json:"downloadCount"`
}

type metadataResponse struct {
	FileID             string    `json:"fileId"`
	Size               int64     `json:"size"`
	UploadedAt         time.Time `json:"uploadedAt"`
	ExpiresAt          time.Time `json:"expiresAt"`
	MaxDownloads       int       `json:"maxDownloads"`
	DownloadCount      int       `json:"downloadCount"`
	RemainingDownloads int       `json:"remainingDownloads"`
	State              string    `json:"state"`
	PasswordProtected  bool      `json:"passwordProtected"`
}

type extendRequest struct {
	Hours int `json:"hours"`
}

type extendResponse struct {
	FileID    string    `json:"fileId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"requestId,omitempty"`
}

func toUploadResponse(r *services.UploadResult) uploadResponse {
	return uploadResponse{
		FileID:      r.FileID,
		ShareURL:    r.ShareURL,
		ExpiresAt:   r.ExpiresAt,
		ManageToken: r.ManageToken,
	}
}

func toDownloadResponse(r *services.DownloadResult) downloadResponse {
	return downloadResponse{
		FileID:             r.FileID,
		EncryptedBlob:      r.EncryptedBlob,
		BlobURL:            r.BlobURL,
		IV:                 r.IV,
		Salt:               r.Salt,
		Size:               r.Size,
		ExpiresAt:          r.ExpiresAt,
		RemainingDownloads: r.RemainingDownloads,
		DownloadCount:      r.DownloadCount,
	}
}

func toMetadataResponse(m *services.FileMetadata) metadataResponse {
	return metadataResponse{
		FileID:             m.FileID,
		Size:               m.Size,
		UploadedAt:         m.UploadedAt,
		ExpiresAt:          m.ExpiresAt,
		MaxDownloads:       m.MaxDownloads,
		DownloadCount:      m.DownloadCount,
		RemainingDownloads: m.RemainingDownloads,
		State:              m.State.String(),
		PasswordProtected:  m.PasswordProtected,
	}
}
