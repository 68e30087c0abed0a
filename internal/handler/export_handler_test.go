package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vikram-labs/schoolpay-api/internal/service"
	"github.com/vikram-labs/schoolpay-api/pkg/storage"
)

func newDownloadFixture(t *testing.T) (*ExportHandler, *storage.LocalStorage, *storage.SignedURLSigner) {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("test-secret", time.Hour)
	svc := service.NewExportService(nil, nil, nil, nil, nil, store, signer, service.ExportConfig{APIPrefix: "/api/v1"}, nil)
	return NewExportHandler(svc), store, signer
}

func TestExportHandlerDownload(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler, store, signer := newDownloadFixture(t)

	relPath, err := store.Save("payments_20260829.csv", []byte("receipt_no,amount\nRCP-1,1500\n"))
	require.NoError(t, err)
	token, _, err := signer.Generate("exp-1", relPath)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/export/"+token, nil)
	c.Request = req
	c.Params = gin.Params{{Key: "token", Value: token}}

	handler.Download(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "payments_20260829.csv")
	assert.Contains(t, w.Body.String(), "RCP-1")
}

func TestExportHandlerDownloadInvalidToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler, _, _ := newDownloadFixture(t)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/export/not-a-token", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "token", Value: "not-a-token"}}

	handler.Download(c)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestExportHandlerDownloadMissingFile(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler, _, signer := newDownloadFixture(t)

	token, _, err := signer.Generate("exp-2", "gone.csv")
	require.NoError(t, err)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/export/"+token, nil)
	c.Request = req
	c.Params = gin.Params{{Key: "token", Value: token}}

	handler.Download(c)
	require.Equal(t, http.StatusNotFound, w.Code)
}
