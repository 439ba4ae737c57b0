package service

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ledgergate/ledgergate/internal/config"
	"github.com/ledgergate/ledgergate/internal/model"
	"github.com/ledgergate/ledgergate/internal/pkg/logger"
	"github.com/ledgergate/ledgergate/internal/pkg/metrics"
)

// AuditRepo is the append-only store behind the audit trail.
type AuditRepo interface {
	Insert(ctx context.Context, record *model.AuditRecord) error
	List(ctx context.Context, userID string, limit int, from, to *time.Time) ([]*model.AuditRecord, error)
}

// AuditService decouples audit persistence from request processing: Log
// enqueues and returns immediately, a single consumer goroutine writes to
// the store and a JSONL file. A saturated queue drops the record (logged and
// counted) rather than block a request; a degraded audit trail is a
// degraded-mode outcome, not a request failure.
type AuditService struct {
	logChan      chan *model.AuditRecord
	logFile      *os.File
	buffer       *auditBuffer
	repo         AuditRepo
	writeTimeout time.Duration
	done         chan struct{}
}

func NewAuditService(cfg config.AuditConfig, repo AuditRepo) (*AuditService, error) {
	if err := os.MkdirAll(cfg.LogDir, 0755); err != nil {
		return nil, err
	}

	// Daily file, append-only.
	filename := filepath.Join(cfg.LogDir, "audit-"+time.Now().Format("2006-01-02")+".jsonl")
	f, err := os.OpenFile(filename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}

	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 1000
	}

	svc := &AuditService{
		logChan:      make(chan *model.AuditRecord, queueSize),
		logFile:      f,
		buffer:       newAuditBuffer(queueSize),
		repo:         repo,
		writeTimeout: cfg.WriteTimeout(),
		done:         make(chan struct{}),
	}

	go svc.processRecords()

	return svc, nil
}

// Log enqueues exactly one record per dispatch attempt. It never blocks and
// never fails the request.
func (s *AuditService) Log(record *model.AuditRecord) {
	if s.buffer != nil {
		s.buffer.Add(record)
	}
	select {
	case s.logChan <- record:
	default:
		metrics.AuditDropped.Inc()
		logger.Warn("audit queue full, dropping record", "action", record.Action)
	}
}

// List reads from the store, falling back to the in-memory ring buffer when
// the store is missing or unreachable.
func (s *AuditService) List(ctx context.Context, userID string, limit int, from, to *time.Time) ([]*model.AuditRecord, error) {
	if s.repo != nil {
		records, err := s.repo.List(ctx, userID, limit, from, to)
		if err == nil {
			return records, nil
		}
		logger.Warn("audit store list failed, serving from buffer", "error", err)
	}
	if s.buffer == nil {
		return nil, nil
	}
	return s.buffer.List(userID, limit), nil
}

func (s *AuditService) processRecords() {
	defer close(s.done)
	encoder := json.NewEncoder(s.logFile)
	for record := range s.logChan {
		if s.repo != nil {
			ctx, cancel := context.WithTimeout(context.Background(), s.writeTimeout)
			if err := s.repo.Insert(ctx, record); err != nil {
				metrics.AuditWriteFailures.Inc()
				logger.Error("failed to write audit record to store", "error", err, "id", record.ID)
			}
			cancel()
		}
		if err := encoder.Encode(record); err != nil {
			logger.Error("failed to write audit record to file", "error", err, "id", record.ID)
		}
	}
}

// Close drains the queue before releasing the file.
func (s *AuditService) Close() {
	close(s.logChan)
	<-s.done
	s.logFile.Close()
}

// auditBuffer is a fixed-size ring of the most recent records, the listing
// fallback when no store is configured.
type auditBuffer struct {
	mu        sync.Mutex
	maxSize   int
	records   []*model.AuditRecord
	nextIndex int
}

func newAuditBuffer(maxSize int) *auditBuffer {
	if maxSize <= 0 {
		maxSize = 1000
	}
	return &auditBuffer{
		maxSize: maxSize,
		records: make([]*model.AuditRecord, 0, maxSize),
	}
}

func (b *auditBuffer) Add(record *model.AuditRecord) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.records) < b.maxSize {
		b.records = append(b.records, record)
		return
	}
	b.records[b.nextIndex] = record
	b.nextIndex = (b.nextIndex + 1) % b.maxSize
}

// List returns the newest records first, optionally filtered by user.
func (b *auditBuffer) List(userID string, limit int) []*model.AuditRecord {
	b.mu.Lock()
	defer b.mu.Unlock()
	if limit <= 0 || limit > b.maxSize {
		limit = b.maxSize
	}
	results := make([]*model.AuditRecord, 0, limit)
	total := len(b.records)
	for i := 0; i < total; i++ {
		idx := (b.nextIndex + total - 1 - i) % total
		record := b.records[idx]
		if record == nil {
			continue
		}
		if userID != "" && record.UserID != userID {
			continue
		}
		results = append(results, record)
		if len(results) >= limit {
			break
		}
	}
	return results
}
