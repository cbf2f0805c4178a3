package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dmitrijs2005/zkshare/internal/common"
	"github.com/dmitrijs2005/zkshare/internal/pipeline"
)

// maxResponseBytes bounds a decoded JSON response: a base64 encoded blob of
// the largest accepted upload plus room for the other fields.
const maxResponseBytes = (common.MaxUploadSize+pipeline.Overhead)/3*4 + 4 + 64<<10

type Client interface {
	Upload(ctx context.Context, req UploadRequest) (*UploadResponse, error)
	Download(ctx context.Context, fileID string) (*DownloadResponse, error)
	Metadata(ctx context.Context, fileID string) (*MetadataResponse, error)
	Delete(ctx context.Context, fileID, manageToken string) error
	Extend(ctx context.Context, fileID, manageToken string, hours int) (time.Time, error)
	Ping(ctx context.Context) error
}

type UploadRequest struct {
	EncryptedBlob []byte `json:"encryptedBlob"`
	IV            []byte `json:"iv"`
	TTLHours      int    `json:"ttlHours"`
	MaxDownloads  int    `json:"maxDownloads"`
	Salt          []byte `json:"salt,omitempty"`
}

type UploadResponse struct {
	FileID      string    `json:"fileId"`
	ShareURL    string    `json:"shareUrl"`
	ExpiresAt   time.Time `json:"expiresAt"`
	ManageToken string    `json:"manageToken"`
}

// DownloadResponse carries either EncryptedBlob or, when the server hands
// out presigned storage URLs, BlobURL.
type DownloadResponse struct {
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

type MetadataResponse struct {
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
	ExpiresAt time.Time `json:"expiresAt"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// HTTPClient talks to the share server over HTTP.
type HTTPClient struct {
	baseURL string
	hc      *http.Client
}

func NewHTTPClient(baseURL string, timeout time.Duration) (*HTTPClient, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, common.NewValidationError("server", "must be an absolute http(s) URL")
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		hc:      &http.Client{Timeout: timeout},
	}, nil
}

func (c *HTTPClient) Upload(ctx context.Context, req UploadRequest) (*UploadResponse, error) {
	var resp UploadResponse
	if err := c.do(ctx, http.MethodPost, "/api/files", "", "", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *HTTPClient) Download(ctx context.Context, fileID string) (*DownloadResponse, error) {
	var resp DownloadResponse
	if err := c.do(ctx, http.MethodGet, filePath(fileID), fileID, "", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *HTTPClient) Metadata(ctx context.Context, fileID string) (*MetadataResponse, error) {
	var resp MetadataResponse
	if err := c.do(ctx, http.MethodGet, filePath(fileID)+"/meta", fileID, "", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *HTTPClient) Delete(ctx context.Context, fileID, manageToken string) error {
	return c.do(ctx, http.MethodDelete, filePath(fileID), fileID, manageToken, nil, nil)
}

func (c *HTTPClient) Extend(ctx context.Context, fileID, manageToken string, hours int) (time.Time, error) {
	var resp extendResponse
	err := c.do(ctx, http.MethodPost, filePath(fileID)+"/extend", fileID, manageToken, extendRequest{Hours: hours}, &resp)
	if err != nil {
		return time.Time{}, err
	}
	return resp.ExpiresAt, nil
}

func (c *HTTPClient) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", "", "", nil, nil)
}

func filePath(fileID string) string {
	return "/api/files/" + url.PathEscape(fileID)
}

func (c *HTTPClient) do(ctx context.Context, method, path, fileID, manageToken string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if manageToken != "" {
		req.Header.Set(common.ManageTokenHeaderName, manageToken)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %s %s", ErrUnavailable, method, path)
	}
	defer resp.Body.Close()

	limited := io.LimitReader(resp.Body, maxResponseBytes)

	if resp.StatusCode >= 300 {
		var e errorResponse
		_ = json.NewDecoder(io.LimitReader(limited, 4<<10)).Decode(&e)
		return statusError(resp.StatusCode, fileID, e.Error)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(limited).Decode(out); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return fmt.Errorf("%w: truncated body", ErrUnexpectedResponse)
		}
		return fmt.Errorf("%w: %v", ErrUnexpectedResponse, err)
	}
	return nil
}
