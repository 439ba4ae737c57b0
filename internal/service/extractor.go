package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/ledgergate/ledgergate/internal/config"
	"github.com/ledgergate/ledgergate/internal/model"
	"github.com/ledgergate/ledgergate/internal/pkg/apperrors"
	"github.com/ledgergate/ledgergate/internal/pkg/logger"
	"github.com/ledgergate/ledgergate/internal/pkg/metrics"
)

// ExtractorClient talks to the external document parser. One attempt per
// request; if anyone retries, it is the caller upstream of the gateway.
type ExtractorClient struct {
	url    string
	client *http.Client
}

func NewExtractorClient(cfg config.ExtractorConfig) *ExtractorClient {
	return &ExtractorClient{
		url: cfg.URL,
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 100,
				IdleConnTimeout:     90 * time.Second,
			},
			Timeout: cfg.Timeout(),
		},
	}
}

type extractedDocument struct {
	Text string `json:"text"`
}

type extractorError struct {
	Detail string `json:"detail"`
}

// Extract uploads the file as multipart form data and returns the parsed
// text. A timeout counts as any other transport failure.
func (c *ExtractorClient) Extract(ctx context.Context, file *model.UploadedFile) (string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", file.Name)
	if err != nil {
		return "", apperrors.New(apperrors.ErrInternal, "failed to encode document upload", err)
	}
	if _, err := part.Write(file.Content); err != nil {
		return "", apperrors.New(apperrors.ErrInternal, "failed to encode document upload", err)
	}
	if err := writer.Close(); err != nil {
		return "", apperrors.New(apperrors.ErrInternal, "failed to encode document upload", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, &body)
	if err != nil {
		return "", apperrors.New(apperrors.ErrInternal, "failed to build extractor request", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		metrics.ExtractionTotal.WithLabelValues("unavailable").Inc()
		return "", apperrors.New(apperrors.ErrExtractionUnavailable, "document extraction service is unavailable", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.ExtractionTotal.WithLabelValues("unavailable").Inc()
		return "", apperrors.New(apperrors.ErrExtractionUnavailable, "document extraction service is unavailable", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var detail extractorError
		if jsonErr := json.Unmarshal(raw, &detail); jsonErr == nil && detail.Detail != "" {
			metrics.ExtractionTotal.WithLabelValues("rejected").Inc()
			return "", apperrors.New(apperrors.ErrExtractionRejected, detail.Detail, nil)
		}
		logger.Warn("extractor returned unexpected status",
			"status", resp.StatusCode, "file", file.Name)
		metrics.ExtractionTotal.WithLabelValues("failed").Inc()
		return "", apperrors.New(apperrors.ErrExtractionFailed, "Error processing document",
			fmt.Errorf("extractor returned status %d", resp.StatusCode))
	}

	var doc extractedDocument
	if err := json.Unmarshal(raw, &doc); err != nil || doc.Text == "" {
		metrics.ExtractionTotal.WithLabelValues("empty").Inc()
		return "", apperrors.New(apperrors.ErrExtractionEmpty, "No text found in the document", err)
	}

	metrics.ExtractionTotal.WithLabelValues("success").Inc()
	return doc.Text, nil
}
