package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ledgergate/ledgergate/internal/middleware"
	"github.com/ledgergate/ledgergate/internal/model"
	"github.com/ledgergate/ledgergate/internal/pkg/apperrors"
	"github.com/ledgergate/ledgergate/internal/service"
)

type GatewayHandler struct {
	svc            *service.GatewayService
	maxUploadBytes int64
}

func NewGatewayHandler(svc *service.GatewayService, maxUploadBytes int64) *GatewayHandler {
	return &GatewayHandler{svc: svc, maxUploadBytes: maxUploadBytes}
}

// Route serves POST /gateway/:service. The service set is closed: each name
// binds its own payload shape, and anything else is rejected before any body
// parsing or upstream work.
func (h *GatewayHandler) Route(c *gin.Context) {
	serviceName := c.Param("service")
	switch serviceName {
	case "service1", "service3":
		h.textService(c, serviceName)
	case "service2":
		h.journalService(c, serviceName)
	case "service4":
		h.transactionService(c, serviceName)
	default:
		c.Error(apperrors.NewUnknownService(serviceName))
	}
}

// textService handles the text endpoints: a multipart form with an optional
// "text" field and an optional "file" part, or a plain JSON body for callers
// with no document to attach. At least one input is required either way.
func (h *GatewayHandler) textService(c *gin.Context, serviceName string) {
	if c.ContentType() == "application/json" {
		var req model.TextRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.Error(apperrors.NewInvalidRequest(err.Error()))
			return
		}
		middleware.AddAuditDetail(c, "text", req.Text)
		h.dispatch(c, serviceName, req)
		return
	}

	text := c.PostForm("text")

	var file *model.UploadedFile
	header, err := c.FormFile("file")
	if err == nil {
		if h.maxUploadBytes > 0 && header.Size > h.maxUploadBytes {
			c.Error(apperrors.NewInvalidRequest(
				fmt.Sprintf("file exceeds the %d byte upload limit", h.maxUploadBytes)))
			return
		}
		opened, err := header.Open()
		if err != nil {
			c.Error(apperrors.NewInvalidRequest("uploaded file could not be read"))
			return
		}
		content, err := io.ReadAll(opened)
		opened.Close()
		if err != nil {
			c.Error(apperrors.NewInvalidRequest("uploaded file could not be read"))
			return
		}
		file = &model.UploadedFile{
			Name:    header.Filename,
			Content: content,
			Size:    header.Size,
		}
	}
	// Any other FormFile error means no usable file part; the empty-input
	// check downstream still applies when the text field is absent too.

	middleware.AddAuditDetail(c, "text", text)
	if file != nil {
		middleware.AddAuditDetail(c, "file", file.Name)
		middleware.AddAuditDetail(c, "fileSize", file.Size)
	}

	h.dispatch(c, serviceName, model.TextOrFileRequest{Text: text, File: file})
}

// journalService handles service2's structured payload: the client bytes are
// buffered before binding so the upstream receives them verbatim, not a
// re-encoding of the validated struct.
func (h *GatewayHandler) journalService(c *gin.Context, serviceName string) {
	raw, err := bufferBody(c)
	if err != nil {
		c.Error(apperrors.NewInvalidRequest("request body could not be read"))
		return
	}
	var req model.JournalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}
	req.Raw = raw
	h.dispatch(c, serviceName, req)
}

// transactionService handles service4's structured payload, forwarded the
// same way as service2's.
func (h *GatewayHandler) transactionService(c *gin.Context, serviceName string) {
	raw, err := bufferBody(c)
	if err != nil {
		c.Error(apperrors.NewInvalidRequest("request body could not be read"))
		return
	}
	var req model.TransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}
	req.Raw = raw
	h.dispatch(c, serviceName, req)
}

// bufferBody reads the payload and restores it for binding.
func bufferBody(c *gin.Context) (json.RawMessage, error) {
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return nil, err
	}
	c.Request.Body = io.NopCloser(bytes.NewReader(raw))
	return raw, nil
}

func (h *GatewayHandler) dispatch(c *gin.Context, serviceName string, req model.ServiceRequest) {
	// Detach from the client connection: a disconnect must not abort the
	// upstream call or the audit trail. Outbound clients carry their own
	// timeouts.
	ctx := context.WithoutCancel(c.Request.Context())

	resp, err := h.svc.Dispatch(ctx, serviceName, req)
	if err != nil {
		c.Error(err)
		return
	}
	c.Data(http.StatusOK, "application/json", resp)
}
