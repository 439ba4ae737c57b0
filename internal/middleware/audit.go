package middleware

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ledgergate/ledgergate/internal/model"
	"github.com/ledgergate/ledgergate/internal/pkg/apperrors"
	"github.com/ledgergate/ledgergate/internal/service"
)

const contextAuditDetails = "audit_details"

// bodyLogWriter wraps the ResponseWriter to capture the response body.
type bodyLogWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w *bodyLogWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

// Audit records exactly one AuditRecord per dispatch attempt, whichever exit
// path the handler takes. It runs only behind Auth: unauthenticated requests
// are rejected earlier and leave no trail. A failing audit store never
// changes the response; persistence problems are the audit service's to log.
func Audit(svc *service.AuditService, maxBodyBytes int) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		reqID := uuid.New().String()
		c.Header("X-Request-ID", reqID)

		requestEcho := snapshotRequest(c, maxBodyBytes)
		c.Set(contextAuditDetails, map[string]any{})

		blw := &bodyLogWriter{body: &bytes.Buffer{}, ResponseWriter: c.Writer}
		c.Writer = blw

		// The record is built in a defer so every exit path produces it,
		// including a panicking handler. The panic is re-raised for the
		// recovery layer after the record is enqueued.
		defer func() {
			panicked := recover()

			details := map[string]any{
				"requestBody":  requestEcho,
				"responseTime": time.Since(start).Milliseconds(),
			}
			if extra, ok := c.Get(contextAuditDetails); ok {
				for k, v := range extra.(map[string]any) {
					details[k] = v
				}
			}

			status := model.AuditStatusSuccess
			switch {
			case panicked != nil:
				status = model.AuditStatusFailure
				details["error"] = fmt.Sprintf("panic: %v", panicked)
			case len(c.Errors) > 0:
				status = model.AuditStatusFailure
				details["error"] = apperrors.Wrap(c.Errors.Last().Err).Message
			case c.Writer.Status() >= 400:
				status = model.AuditStatusFailure
				details["error"] = truncate(blw.body.String(), maxBodyBytes)
			default:
				details["responseData"] = snapshotJSON(blw.body.Bytes(), maxBodyBytes)
			}

			userID := ""
			if identity := IdentityFrom(c); identity != nil {
				userID = identity.Subject
			}

			svc.Log(&model.AuditRecord{
				ID:        reqID,
				Action:    c.Request.Method + " " + c.Request.URL.Path,
				UserID:    userID,
				IP:        c.ClientIP(),
				UserAgent: c.Request.UserAgent(),
				Details:   details,
				Status:    status,
				Timestamp: start,
			})

			if panicked != nil {
				panic(panicked)
			}
		}()

		c.Next()
	}
}

// AddAuditDetail lets handlers enrich the audit record with request context
// the middleware cannot see, such as multipart fields.
func AddAuditDetail(c *gin.Context, key string, value any) {
	if val, exists := c.Get(contextAuditDetails); exists {
		if details, ok := val.(map[string]any); ok {
			details[key] = value
		}
	}
}

// snapshotRequest echoes the request into the audit record. JSON bodies are
// read (and restored for the handler), redacted, and bounded. Multipart
// bodies are not buffered here; handlers describe them via AddAuditDetail.
func snapshotRequest(c *gin.Context, maxBytes int) any {
	contentType := c.GetHeader("Content-Type")
	if strings.HasPrefix(contentType, "multipart/form-data") {
		return "[multipart]"
	}
	if c.Request.Body == nil {
		return nil
	}

	raw, _ := io.ReadAll(c.Request.Body)
	c.Request.Body = io.NopCloser(bytes.NewBuffer(raw))
	if len(raw) == 0 {
		return nil
	}
	return redactJSON(raw, maxBytes)
}

// snapshotJSON keeps a bounded, parsed copy of a JSON payload, falling back
// to a truncated string when the payload is not JSON.
func snapshotJSON(raw []byte, maxBytes int) any {
	if len(raw) == 0 {
		return nil
	}
	if len(raw) <= maxBytes {
		var parsed any
		if err := json.Unmarshal(raw, &parsed); err == nil {
			return parsed
		}
	}
	return truncate(string(raw), maxBytes)
}

func redactJSON(raw []byte, maxBytes int) any {
	var data any
	if err := json.Unmarshal(raw, &data); err != nil {
		return truncate(string(raw), maxBytes)
	}
	redactValue(&data)
	if out, err := json.Marshal(data); err == nil && len(out) > maxBytes {
		return truncate(string(out), maxBytes)
	}
	return data
}

func redactValue(v *any) {
	switch raw := (*v).(type) {
	case map[string]any:
		for key, val := range raw {
			if isSensitiveKey(key) {
				raw[key] = "***"
				continue
			}
			vv := val
			redactValue(&vv)
			raw[key] = vv
		}
	case []any:
		for i, val := range raw {
			vv := val
			redactValue(&vv)
			raw[i] = vv
		}
	}
}

func isSensitiveKey(key string) bool {
	switch strings.ToLower(strings.TrimSpace(key)) {
	case "authorization",
		"token",
		"access_token",
		"api_key",
		"secret",
		"password",
		"credential":
		return true
	default:
		return false
	}
}

func truncate(s string, maxBytes int) string {
	if maxBytes <= 0 || len(s) <= maxBytes {
		return s
	}
	return s[:maxBytes] + "...[truncated]"
}
