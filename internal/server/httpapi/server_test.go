package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/zkshare/internal/clock"
	"github.com/dmitrijs2005/zkshare/internal/common"
	"github.com/dmitrijs2005/zkshare/internal/cryptox"
	"github.com/dmitrijs2005/zkshare/internal/logging"
	"github.com/dmitrijs2005/zkshare/internal/server/blobstore"
	"github.com/dmitrijs2005/zkshare/internal/server/repositories/sharedfiles"
	"github.com/dmitrijs2005/zkshare/internal/server/services"
)

var start = time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)

func init() {
	gin.SetMode(gin.TestMode)
}

type testEnv struct {
	handler http.Handler
	clk     *clock.FakeClock
	logs    *bytes.Buffer
}

func newTestEnv(t *testing.T, opts Options) *testEnv {
	t.Helper()
	clk := clock.NewFake(start)
	store := sharedfiles.NewStore(sharedfiles.NewMemoryRepository(), blobstore.NewMemoryStore(), sharedfiles.StoreOptions{})
	svc := services.NewShareService(store, clk, nil, services.ShareOptions{
		BaseURL:   "https://share.example.com",
		SecretKey: []byte("k"),
	})
	var logs bytes.Buffer
	if opts.RateBurst == 0 {
		opts.RateBurst = 1000
	}
	opts.Clock = clk
	srv := NewServer(":0", logging.New(&logs, 0, true), svc, opts)
	return &testEnv{handler: srv.Handler(), clk: clk, logs: &logs}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(b)
	} else {
		rdr = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rdr)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func sealed(t *testing.T) ([]byte, []byte) {
	t.Helper()
	blob, iv, err := cryptox.Encrypt([]byte("top secret payload"), cryptox.GenerateKey())
	require.NoError(t, err)
	return blob, iv
}

func (e *testEnv) upload(t *testing.T, maxDownloads int) uploadResponse {
	t.Helper()
	blob, iv := sealed(t)
	w := e.do(t, http.MethodPost, "/api/files", map[string]any{
		"encryptedBlob": blob, "iv": iv, "ttlHours": 1, "maxDownloads": maxDownloads,
	}, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var res uploadResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	return res
}

func TestUploadAndDownload(t *testing.T) {
	e := newTestEnv(t, Options{})
	blob, iv := sealed(t)

	w := e.do(t, http.MethodPost, "/api/files", map[string]any{
		"encryptedBlob": blob, "iv": iv, "ttlHours": 2, "maxDownloads": 2,
	}, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.NotEmpty(t, w.Header().Get(common.RequestIDHeaderName))

	var up uploadResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &up))
	assert.Equal(t, "https://share.example.com/s/"+up.FileID, up.ShareURL)
	assert.NotEmpty(t, up.ManageToken)

	w = e.do(t, http.MethodGet, "/api/files/"+up.FileID, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))

	var down downloadResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &down))
	assert.Equal(t, blob, down.EncryptedBlob)
	assert.Equal(t, iv, down.IV)
	assert.Equal(t, 1, down.RemainingDownloads)

	plain, err := cryptox.Decrypt(down.EncryptedBlob, cryptox.GenerateKey(), down.IV)
	assert.ErrorIs(t, err, common.ErrAuthentication, "server data alone never decrypts")
	assert.Nil(t, plain)
}

func TestUpload_DefaultsApplied(t *testing.T) {
	e := newTestEnv(t, Options{})
	blob, iv := sealed(t)

	w := e.do(t, http.MethodPost, "/api/files", map[string]any{"encryptedBlob": blob, "iv": iv}, nil)
	require.Equal(t, http.StatusCreated, w.Code)

	var up uploadResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &up))
	assert.Equal(t, start.Add(common.DefaultTTLHours*time.Hour), up.ExpiresAt)
}

func TestUpload_Errors(t *testing.T) {
	e := newTestEnv(t, Options{MaxUploadSize: 32})
	blob, iv := sealed(t)

	w := e.do(t, http.MethodPost, "/api/files", map[string]any{
		"encryptedBlob": blob, "iv": iv, "ttlHours": 500,
	}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "ttlHours")

	req := httptest.NewRequest(http.MethodPost, "/api/files", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	big := make([]byte, 100<<10)
	w = e.do(t, http.MethodPost, "/api/files", map[string]any{"encryptedBlob": big, "iv": iv}, nil)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestDownload_StatusCodes(t *testing.T) {
	e := newTestEnv(t, Options{})
	up := e.upload(t, 1)

	assert.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/api/files/"+up.FileID, nil, nil).Code)
	w := e.do(t, http.MethodGet, "/api/files/"+up.FileID, nil, nil)
	assert.Equal(t, http.StatusGone, w.Code)
	assert.Contains(t, w.Body.String(), "download limit exceeded")

	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodGet, "/api/files/AAAAAAAAAA", nil, nil).Code)
	assert.Equal(t, http.StatusBadRequest, e.do(t, http.MethodGet, "/api/files/short", nil, nil).Code)

	expiring := e.upload(t, 5)
	e.clk.Advance(time.Hour)
	w = e.do(t, http.MethodGet, "/api/files/"+expiring.FileID, nil, nil)
	assert.Equal(t, http.StatusGone, w.Code)
	assert.Contains(t, w.Body.String(), "expired")
}

func TestMetadataAndShareLink(t *testing.T) {
	e := newTestEnv(t, Options{})
	up := e.upload(t, 3)

	for _, path := range []string{"/api/files/" + up.FileID + "/meta", "/s/" + up.FileID} {
		w := e.do(t, http.MethodGet, path, nil, nil)
		require.Equal(t, http.StatusOK, w.Code, path)
		var m metadataResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &m))
		assert.Equal(t, "active", m.State)
		assert.Equal(t, 3, m.RemainingDownloads, "metadata does not count downloads")
		assert.NotContains(t, w.Body.String(), "encryptedBlob")
	}
}

func TestDeleteAndExtend(t *testing.T) {
	e := newTestEnv(t, Options{})
	up := e.upload(t, 3)
	auth := map[string]string{common.ManageTokenHeaderName: up.ManageToken}
	path := "/api/files/" + up.FileID

	w := e.do(t, http.MethodPost, path+"/extend", map[string]int{"hours": 5}, auth)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var ext extendResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ext))
	assert.Equal(t, start.Add(6*time.Hour), ext.ExpiresAt)

	assert.Equal(t, http.StatusForbidden, e.do(t, http.MethodDelete, path, nil, nil).Code)
	assert.Equal(t, http.StatusNoContent, e.do(t, http.MethodDelete, path, nil, auth).Code)
	assert.Equal(t, http.StatusGone, e.do(t, http.MethodGet, path, nil, nil).Code)
	assert.Equal(t, http.StatusGone, e.do(t, http.MethodPost, path+"/extend", map[string]int{"hours": 1}, auth).Code)
}

func TestVerifyAndHealth(t *testing.T) {
	e := newTestEnv(t, Options{})
	up := e.upload(t, 1)

	assert.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/api/files/"+up.FileID+"/verify", nil, nil).Code)

	w := e.do(t, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"healthy":true`)
}

func TestRateLimit(t *testing.T) {
	e := newTestEnv(t, Options{RateLimitRPS: 1, RateBurst: 2})

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		codes = append(codes, e.do(t, http.MethodGet, "/api/files/AAAAAAAAAA", nil, nil).Code)
	}
	assert.Equal(t, []int{http.StatusNotFound, http.StatusNotFound, http.StatusTooManyRequests}, codes)

	e.clk.Advance(time.Second)
	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodGet, "/api/files/AAAAAAAAAA", nil, nil).Code)
}

func TestRateLimiter_PrunesIdleClients(t *testing.T) {
	clk := clock.NewFake(start)
	l := NewRateLimiter(1, 1, clk)
	l.allow("10.0.0.1")
	l.allow("10.0.0.2")
	assert.Equal(t, 2, l.size())

	clk.Advance(5 * time.Minute)
	l.allow("10.0.0.3")
	assert.Equal(t, 1, l.size())
}

func TestRequestID_ReusesWellFormedHeader(t *testing.T) {
	e := newTestEnv(t, Options{})

	w := e.do(t, http.MethodGet, "/health", nil, map[string]string{common.RequestIDHeaderName: "abc-123"})
	assert.Equal(t, "abc-123", w.Header().Get(common.RequestIDHeaderName))

	w = e.do(t, http.MethodGet, "/health", nil, map[string]string{common.RequestIDHeaderName: "bad id\nx"})
	assert.NotEqual(t, "bad id\nx", w.Header().Get(common.RequestIDHeaderName))
}

func TestAccessLogOmitsSecrets(t *testing.T) {
	e := newTestEnv(t, Options{})
	up := e.upload(t, 1)
	e.do(t, http.MethodGet, "/api/files/"+up.FileID+"?k=v", nil, nil)

	out := e.logs.String()
	assert.Contains(t, out, `"route":"/api/files/:id"`)
	assert.NotContains(t, out, up.ManageToken)
	assert.NotContains(t, out, "k=v")
}

func TestErrorStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{common.NewValidationError("x", "bad"), http.StatusBadRequest},
		{&common.PrivacyViolationError{Op: "decrypt", Reason: "no key"}, http.StatusBadRequest},
		{common.ErrorNotFound, http.StatusNotFound},
		{&common.LifecycleError{Err: common.ErrFileDeleted}, http.StatusGone},
		{&common.LifecycleError{Err: common.ErrCannotExtendDeletedFile}, http.StatusGone},
		{common.ErrTokenExpired, http.StatusUnauthorized},
		{common.ErrInvalidToken, http.StatusForbidden},
		{common.WrapStorage("put blob", errors.New("s3: secret-bucket-detail")), http.StatusInternalServerError},
		{context.Canceled, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		got, msg := errorStatus(tc.err)
		assert.Equal(t, tc.want, got, tc.err.Error())
		assert.NotContains(t, msg, "secret-bucket-detail")
	}
}
