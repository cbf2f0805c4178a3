package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dmitrijs2005/zkshare/internal/common"
	"github.com/dmitrijs2005/zkshare/internal/server/repositories/sharedfiles"
	"github.com/dmitrijs2005/zkshare/internal/server/services"
)

// ShareService is what the handlers need from services.ShareService.
type ShareService interface {
	Upload(ctx context.Context, req services.UploadRequest) (*services.UploadResult, error)
	Download(ctx context.Context, id string) (*services.DownloadResult, error)
	Metadata(ctx context.Context, id string) (*services.FileMetadata, error)
	Delete(ctx context.Context, id, token string) error
	ExtendTTL(ctx context.Context, id, token string, hours int) (time.Time, error)
	Health(ctx context.Context) sharedfiles.Health
	VerifyIntegrity(ctx context.Context, id string) error
}

type handlers struct {
	svc          ShareService
	maxBodyBytes int64
	server       *Server
}

func (h *handlers) fail(c *gin.Context, err error) {
	status, msg := errorStatus(err)
	if status >= http.StatusInternalServerError {
		h.server.logger.Error(c.Request.Context(), "request failed",
			"request_id", requestID(c), "route", c.FullPath(), "error", err)
	}
	c.AbortWithStatusJSON(status, errorResponse{Error: msg, RequestID: requestID(c)})
}

func (h *handlers) upload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBodyBytes)

	var body uploadRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			h.fail(c, mbe)
			return
		}
		h.fail(c, common.NewValidationError("body", "malformed JSON"))
		return
	}

	req := services.UploadRequest{
		EncryptedBlob: body.EncryptedBlob,
		IV:            body.IV,
		TTLHours:      common.DefaultTTLHours,
		MaxDownloads:  common.MinDownloads,
		Salt:          body.Salt,
	}
	if body.TTLHours != nil {
		req.TTLHours = *body.TTLHours
	}
	if body.MaxDownloads != nil {
		req.MaxDownloads = *body.MaxDownloads
	}

	res, err := h.svc.Upload(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, toUploadResponse(res))
}

func (h *handlers) download(c *gin.Context) {
	res, err := h.svc.Download(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, toDownloadResponse(res))
}

func (h *handlers) metadata(c *gin.Context) {
	m, err := h.svc.Metadata(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toMetadataResponse(m))
}

func (h *handlers) delete(c *gin.Context) {
	err := h.svc.Delete(c.Request.Context(), c.Param("id"), c.GetHeader(common.ManageTokenHeaderName))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handlers) extend(c *gin.Context) {
	var body extendRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		h.fail(c, common.NewValidationError("body", "malformed JSON"))
		return
	}
	id := c.Param("id")
	expiresAt, err := h.svc.ExtendTTL(c.Request.Context(), id, c.GetHeader(common.ManageTokenHeaderName), body.Hours)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, extendResponse{FileID: id, ExpiresAt: expiresAt})
}

func (h *handlers) verify(c *gin.Context) {
	if err := h.svc.VerifyIntegrity(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"fileId": c.Param("id"), "intact": true})
}

func (h *handlers) health(c *gin.Context) {
	hl := h.svc.Health(c.Request.Context())
	status := http.StatusOK
	if !hl.Healthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, hl)
}
