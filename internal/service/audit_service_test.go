package service

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgergate/ledgergate/internal/config"
	"github.com/ledgergate/ledgergate/internal/model"
)

type recordingAuditRepo struct {
	mu      sync.Mutex
	records []*model.AuditRecord
}

func (r *recordingAuditRepo) Insert(_ context.Context, record *model.AuditRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, record)
	return nil
}

func (r *recordingAuditRepo) List(_ context.Context, userID string, limit int, _, _ *time.Time) ([]*model.AuditRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*model.AuditRecord, 0, len(r.records))
	for i := len(r.records) - 1; i >= 0; i-- {
		if userID != "" && r.records[i].UserID != userID {
			continue
		}
		out = append(out, r.records[i])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func testRecord(id, userID string) *model.AuditRecord {
	return &model.AuditRecord{
		ID:        id,
		Action:    "POST /gateway/service1",
		UserID:    userID,
		Status:    model.AuditStatusSuccess,
		Details:   map[string]any{"responseTime": int64(3)},
		Timestamp: time.Now(),
	}
}

func TestAuditServiceWritesStoreAndFile(t *testing.T) {
	dir := t.TempDir()
	repo := &recordingAuditRepo{}
	svc, err := NewAuditService(config.AuditConfig{
		LogDir:              dir,
		QueueSize:           8,
		WriteTimeoutSeconds: 1,
	}, repo)
	require.NoError(t, err)

	svc.Log(testRecord("r1", "user-1"))
	svc.Log(testRecord("r2", "user-2"))
	svc.Close()

	repo.mu.Lock()
	assert.Len(t, repo.records, 2)
	repo.mu.Unlock()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	f, err := os.Open(filepath.Join(dir, entries[0].Name()))
	require.NoError(t, err)
	defer f.Close()

	var lines int
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var record model.AuditRecord
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &record))
		lines++
	}
	assert.Equal(t, 2, lines)
}

func TestAuditServiceListPrefersStore(t *testing.T) {
	repo := &recordingAuditRepo{}
	svc, err := NewAuditService(config.AuditConfig{LogDir: t.TempDir(), QueueSize: 8, WriteTimeoutSeconds: 1}, repo)
	require.NoError(t, err)
	defer svc.Close()

	require.NoError(t, repo.Insert(context.Background(), testRecord("stored", "user-1")))

	records, err := svc.List(context.Background(), "", 10, nil, nil)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "stored", records[0].ID)
}

func TestAuditServiceListFallsBackToBuffer(t *testing.T) {
	svc, err := NewAuditService(config.AuditConfig{LogDir: t.TempDir(), QueueSize: 8, WriteTimeoutSeconds: 1}, nil)
	require.NoError(t, err)
	defer svc.Close()

	svc.Log(testRecord("r1", "user-1"))
	svc.Log(testRecord("r2", "user-2"))
	svc.Log(testRecord("r3", "user-1"))

	records, err := svc.List(context.Background(), "user-1", 10, nil, nil)
	require.NoError(t, err)
	require.Len(t, records, 2)
	// Newest first.
	assert.Equal(t, "r3", records[0].ID)
	assert.Equal(t, "r1", records[1].ID)
}

func TestAuditServiceBufferEvictsOldest(t *testing.T) {
	svc, err := NewAuditService(config.AuditConfig{LogDir: t.TempDir(), QueueSize: 2, WriteTimeoutSeconds: 1}, nil)
	require.NoError(t, err)
	defer svc.Close()

	svc.Log(testRecord("r1", "user-1"))
	svc.Log(testRecord("r2", "user-1"))
	svc.Log(testRecord("r3", "user-1"))

	records, err := svc.List(context.Background(), "", 10, nil, nil)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "r3", records[0].ID)
	assert.Equal(t, "r2", records[1].ID)
}
