package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgergate/ledgergate/internal/config"
	"github.com/ledgergate/ledgergate/internal/middleware"
	"github.com/ledgergate/ledgergate/internal/model"
	"github.com/ledgergate/ledgergate/internal/service"
)

const gatewaySecret = "gateway-test-secret"

type stubExtractor struct {
	calls int
	text  string
	err   error
}

func (s *stubExtractor) Extract(_ context.Context, _ *model.UploadedFile) (string, error) {
	s.calls++
	return s.text, s.err
}

type gatewayFixture struct {
	router      *gin.Engine
	audit       *service.AuditService
	extractor   *stubExtractor
	upstream    []map[string]any
	upstreamRaw []string
}

// newGatewayFixture wires the same chain main assembles: error handling at
// the edge, then auth and audit guarding the gateway group.
func newGatewayFixture(t *testing.T) *gatewayFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	fx := &gatewayFixture{extractor: &stubExtractor{text: "extracted"}}

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var body map[string]any
		json.Unmarshal(raw, &body)
		fx.upstream = append(fx.upstream, body)
		fx.upstreamRaw = append(fx.upstreamRaw, string(raw))
		w.Write([]byte(`{"result":"ok"}`))
	}))
	t.Cleanup(upstream.Close)

	cfg := &config.Config{
		Services: map[string]string{
			"service1": upstream.URL,
			"service2": upstream.URL,
			"service3": upstream.URL,
			"service4": upstream.URL,
		},
		Upstream: config.UpstreamConfig{TimeoutSeconds: 2},
	}

	auditSvc, err := service.NewAuditService(config.AuditConfig{
		LogDir:              t.TempDir(),
		QueueSize:           16,
		WriteTimeoutSeconds: 1,
		MaxBodyBytes:        4096,
	}, nil)
	require.NoError(t, err)
	t.Cleanup(auditSvc.Close)
	fx.audit = auditSvc

	verifier := middleware.NewHMACVerifier(config.AuthConfig{HMACSecret: gatewaySecret})
	gwHandler := NewGatewayHandler(service.NewGatewayService(cfg, fx.extractor), 1024)

	r := gin.New()
	r.Use(middleware.ErrorHandler())
	gw := r.Group("/gateway")
	gw.Use(middleware.Auth(verifier))
	gw.Use(middleware.Audit(auditSvc, 4096))
	gw.POST("/:service", gwHandler.Route)

	fx.router = r
	return fx
}

func gatewayToken(t *testing.T) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user-9",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(gatewaySecret))
	require.NoError(t, err)
	return signed
}

func multipartBody(t *testing.T, text, fileName string, fileContent []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	if text != "" {
		require.NoError(t, writer.WriteField("text", text))
	}
	if fileName != "" {
		part, err := writer.CreateFormFile("file", fileName)
		require.NoError(t, err)
		_, err = part.Write(fileContent)
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())
	return &buf, writer.FormDataContentType()
}

func (fx *gatewayFixture) do(t *testing.T, req *http.Request, authed bool) *httptest.ResponseRecorder {
	t.Helper()
	if authed {
		req.Header.Set("Authorization", "Bearer "+gatewayToken(t))
	}
	w := httptest.NewRecorder()
	fx.router.ServeHTTP(w, req)
	return w
}

func errorBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestGatewayTextHappyPath(t *testing.T) {
	fx := newGatewayFixture(t)

	body, contentType := multipartBody(t, "hello", "", nil)
	req := httptest.NewRequest(http.MethodPost, "/gateway/service1", body)
	req.Header.Set("Content-Type", contentType)
	w := fx.do(t, req, true)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"result":"ok"}`, w.Body.String())
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	require.Len(t, fx.upstream, 1)
	assert.Equal(t, map[string]any{"input_text": "hello"}, fx.upstream[0])
	assert.Zero(t, fx.extractor.calls)

	records, err := fx.audit.List(context.Background(), "user-9", 10, nil, nil)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, model.AuditStatusSuccess, records[0].Status)
	assert.Equal(t, "POST /gateway/service1", records[0].Action)
}

func TestGatewayFileAndText(t *testing.T) {
	fx := newGatewayFixture(t)

	body, contentType := multipartBody(t, "context:", "report.pdf", []byte("fake pdf"))
	req := httptest.NewRequest(http.MethodPost, "/gateway/service1", body)
	req.Header.Set("Content-Type", contentType)
	w := fx.do(t, req, true)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, fx.extractor.calls)
	require.Len(t, fx.upstream, 1)
	assert.Equal(t, map[string]any{"input_text": "context:\nextracted"}, fx.upstream[0])
}

func TestGatewayRejectsDisallowedFileType(t *testing.T) {
	fx := newGatewayFixture(t)

	body, contentType := multipartBody(t, "", "notes.exe", []byte("MZ"))
	req := httptest.NewRequest(http.MethodPost, "/gateway/service1", body)
	req.Header.Set("Content-Type", contentType)
	w := fx.do(t, req, true)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Zero(t, fx.extractor.calls)
	assert.Empty(t, fx.upstream)

	resp := errorBody(t, w)
	assert.Equal(t, "UNSUPPORTED_FILE_TYPE", resp["code"])
	assert.Contains(t, resp["message"], "File type not allowed")

	records, err := fx.audit.List(context.Background(), "", 10, nil, nil)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, model.AuditStatusFailure, records[0].Status)
}

func TestGatewayEmptyInput(t *testing.T) {
	fx := newGatewayFixture(t)

	body, contentType := multipartBody(t, "", "", nil)
	req := httptest.NewRequest(http.MethodPost, "/gateway/service1", body)
	req.Header.Set("Content-Type", contentType)
	w := fx.do(t, req, true)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	resp := errorBody(t, w)
	assert.Equal(t, "No input provided.", resp["message"])
}

func TestGatewayUploadCap(t *testing.T) {
	fx := newGatewayFixture(t)

	// Fixture caps uploads at 1024 bytes.
	body, contentType := multipartBody(t, "", "big.pdf", bytes.Repeat([]byte("a"), 2048))
	req := httptest.NewRequest(http.MethodPost, "/gateway/service1", body)
	req.Header.Set("Content-Type", contentType)
	w := fx.do(t, req, true)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Zero(t, fx.extractor.calls)
}

func TestGatewayUnknownService(t *testing.T) {
	fx := newGatewayFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/gateway/service9", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	w := fx.do(t, req, true)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	resp := errorBody(t, w)
	assert.Equal(t, "UNKNOWN_SERVICE", resp["code"])
	assert.Equal(t, float64(http.StatusBadRequest), resp["statusCode"])
	assert.Empty(t, fx.upstream)
}

func TestGatewayRequiresAuth(t *testing.T) {
	fx := newGatewayFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/gateway/service1", nil)
	w := fx.do(t, req, false)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, fx.upstream)

	records, err := fx.audit.List(context.Background(), "", 10, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestGatewayJournalForwarded(t *testing.T) {
	fx := newGatewayFixture(t)

	payload := `{"journal_entries":[{"account":"cash","debit":150,"credit":0},{"account":"revenue","debit":0,"credit":150}]}`
	req := httptest.NewRequest(http.MethodPost, "/gateway/service2", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := fx.do(t, req, true)

	assert.Equal(t, http.StatusOK, w.Code)
	require.Len(t, fx.upstreamRaw, 1)
	// Verbatim forwarding: numeric fields arrive upstream as numbers the
	// client sent, not as quoted decimals.
	assert.JSONEq(t, payload, fx.upstreamRaw[0])
	assert.Contains(t, fx.upstreamRaw[0], `"debit":150`)
	assert.NotContains(t, fx.upstreamRaw[0], `"debit":"150"`)
}

func TestGatewayJournalBindError(t *testing.T) {
	fx := newGatewayFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/gateway/service2", strings.NewReader(`{"journal_entries":"nope"}`))
	req.Header.Set("Content-Type", "application/json")
	w := fx.do(t, req, true)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	resp := errorBody(t, w)
	assert.Equal(t, "INVALID_REQUEST", resp["code"])
}

func TestGatewayTransactionForwarded(t *testing.T) {
	fx := newGatewayFixture(t)

	payload := `{
		"transaction_id": "tx-1",
		"date": "2026-08-01",
		"type": "wire",
		"amount": 2500.00,
		"currency": "USD",
		"institution": "First Bank",
		"counterparty": "Acme Corp",
		"location": "NYC",
		"description": "invoice 88"
	}`
	req := httptest.NewRequest(http.MethodPost, "/gateway/service4", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := fx.do(t, req, true)

	assert.Equal(t, http.StatusOK, w.Code)
	require.Len(t, fx.upstreamRaw, 1)
	// Forwarding compacts whitespace but never re-encodes tokens.
	assert.JSONEq(t, payload, fx.upstreamRaw[0])
	assert.Contains(t, fx.upstreamRaw[0], `"amount":2500.00`)
	assert.Equal(t, "tx-1", fx.upstream[0]["transaction_id"])
	assert.Equal(t, "Acme Corp", fx.upstream[0]["counterparty"])
}

func TestGatewayTextJSONBody(t *testing.T) {
	fx := newGatewayFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/gateway/service1", strings.NewReader(`{"text":"hello"}`))
	req.Header.Set("Content-Type", "application/json")
	w := fx.do(t, req, true)

	assert.Equal(t, http.StatusOK, w.Code)
	require.Len(t, fx.upstream, 1)
	assert.Equal(t, map[string]any{"input_text": "hello"}, fx.upstream[0])
	assert.Zero(t, fx.extractor.calls)
}
