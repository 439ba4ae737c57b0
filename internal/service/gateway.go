package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ledgergate/ledgergate/internal/config"
	"github.com/ledgergate/ledgergate/internal/model"
	"github.com/ledgergate/ledgergate/internal/pkg/apperrors"
	"github.com/ledgergate/ledgergate/internal/pkg/logger"
	"github.com/ledgergate/ledgergate/internal/pkg/metrics"
)

// DocumentExtractor converts an uploaded document to text.
type DocumentExtractor interface {
	Extract(ctx context.Context, file *model.UploadedFile) (string, error)
}

// upstreamTextField maps a text service to the field name its upstream
// expects. The service set is closed; anything not listed here posts {text}.
var upstreamTextField = map[string]string{
	"service1": "input_text",
	"service3": "text",
}

// GatewayService resolves a service name against the routing table,
// normalizes the payload, and calls the upstream exactly once.
type GatewayService struct {
	routes     map[string]string
	extractor  DocumentExtractor
	httpClient *http.Client
}

func NewGatewayService(cfg *config.Config, extractor DocumentExtractor) *GatewayService {
	routes := make(map[string]string, len(cfg.Services))
	for name, baseURL := range cfg.Services {
		if baseURL != "" {
			routes[name] = baseURL
		}
	}

	return &GatewayService{
		routes:    routes,
		extractor: extractor,
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 100,
				IdleConnTimeout:     90 * time.Second,
			},
			Timeout: cfg.Upstream.Timeout(),
		},
	}
}

// Dispatch routes one request to its upstream. The routing-table check comes
// first: an unknown service never triggers file parsing or network I/O.
func (s *GatewayService) Dispatch(ctx context.Context, serviceName string, req model.ServiceRequest) (json.RawMessage, error) {
	upstreamURL, ok := s.routes[serviceName]
	if !ok {
		metrics.DispatchTotal.WithLabelValues(serviceName, "rejected").Inc()
		return nil, apperrors.NewUnknownService(serviceName)
	}

	body, err := s.buildUpstreamBody(ctx, serviceName, req)
	if err != nil {
		metrics.DispatchTotal.WithLabelValues(serviceName, "rejected").Inc()
		return nil, err
	}

	resp, err := s.callUpstream(ctx, serviceName, upstreamURL, body)
	if err != nil {
		metrics.DispatchTotal.WithLabelValues(serviceName, "failure").Inc()
		return nil, err
	}
	metrics.DispatchTotal.WithLabelValues(serviceName, "success").Inc()
	return resp, nil
}

// buildUpstreamBody normalizes the tagged payload union into the upstream
// contract. Every variant is matched explicitly; an unmatched variant is a
// programming error, not a routing fallback.
func (s *GatewayService) buildUpstreamBody(ctx context.Context, serviceName string, req model.ServiceRequest) (any, error) {
	switch r := req.(type) {
	case model.TextOrFileRequest:
		if err := r.Validate(); err != nil {
			return nil, err
		}
		text, err := s.resolveText(ctx, r)
		if err != nil {
			return nil, err
		}
		return textBody(serviceName, text), nil

	case model.TextRequest:
		if r.Text == "" {
			return nil, apperrors.New(apperrors.ErrEmptyInput, "No input provided.", nil)
		}
		return textBody(serviceName, r.Text), nil

	case model.JournalRequest:
		if err := r.Validate(); err != nil {
			return nil, err
		}
		return forwardBody(r, r.Raw), nil

	case model.TransactionRequest:
		if err := r.Validate(); err != nil {
			return nil, err
		}
		return forwardBody(r, r.Raw), nil

	default:
		return nil, apperrors.New(apperrors.ErrInternal,
			fmt.Sprintf("unhandled request variant %T", req), nil)
	}
}

// resolveText merges supplied text with extracted document text, the
// document's text appended after any free text, newline-separated. The file
// type gate runs before any extractor call.
func (s *GatewayService) resolveText(ctx context.Context, req model.TextOrFileRequest) (string, error) {
	text := req.Text
	if req.File == nil {
		return text, nil
	}

	if err := ValidateFileType(req.File.Name); err != nil {
		return "", err
	}

	extracted, err := s.extractor.Extract(ctx, req.File)
	if err != nil {
		return "", err
	}

	if text == "" {
		return extracted, nil
	}
	return text + "\n" + extracted, nil
}

// forwardBody prefers the client's original bytes: re-marshaling the typed
// struct would quote the decimal fields and turn JSON numbers into strings.
// The struct form is an internal fallback, not a wire contract.
func forwardBody(req any, raw json.RawMessage) any {
	if len(raw) > 0 {
		return raw
	}
	return req
}

func textBody(serviceName, text string) map[string]string {
	field, ok := upstreamTextField[serviceName]
	if !ok {
		field = "text"
	}
	return map[string]string{field: text}
}

type upstreamErrorBody struct {
	Message string `json:"message"`
	Detail  string `json:"detail"`
	Error   string `json:"error"`
}

func (b upstreamErrorBody) first() string {
	switch {
	case b.Message != "":
		return b.Message
	case b.Detail != "":
		return b.Detail
	default:
		return b.Error
	}
}

// callUpstream posts the normalized body once. No automatic retry: a failed
// dispatch is the caller's to resubmit.
func (s *GatewayService) callUpstream(ctx context.Context, serviceName, upstreamURL string, body any) (json.RawMessage, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, apperrors.New(apperrors.ErrInternal, "failed to encode upstream request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, upstreamURL, bytes.NewReader(payload))
	if err != nil {
		return nil, apperrors.New(apperrors.ErrInternal, "failed to build upstream request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		logger.Warn("upstream call failed", "service", serviceName, "error", err)
		return nil, apperrors.NewUpstreamUnavailable(serviceName, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.NewUpstreamUnavailable(serviceName, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var upstreamErr upstreamErrorBody
		if jsonErr := json.Unmarshal(raw, &upstreamErr); jsonErr == nil && upstreamErr.first() != "" {
			return nil, apperrors.New(apperrors.ErrUpstreamError, upstreamErr.first(), nil)
		}
		logger.Warn("upstream returned unexpected status",
			"service", serviceName, "status", resp.StatusCode)
		return nil, apperrors.NewUpstreamUnavailable(serviceName,
			fmt.Errorf("upstream returned status %d", resp.StatusCode))
	}

	if len(raw) == 0 {
		raw = []byte("{}")
	}
	return json.RawMessage(raw), nil
}
