package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ledgergate/ledgergate/internal/model"
)

// RedisAuditRepo keeps the audit trail in a capped Redis list, for installs
// without Postgres. LPUSH newest-first, trimmed to a bound.
type RedisAuditRepo struct {
	client  *redis.Client
	listKey string
	listMax int
}

func NewRedisAuditRepo(client *redis.Client, listKey string, listMax int) *RedisAuditRepo {
	if listKey == "" {
		listKey = "audit_records"
	}
	if listMax <= 0 {
		listMax = 10000
	}
	return &RedisAuditRepo{
		client:  client,
		listKey: listKey,
		listMax: listMax,
	}
}

func (r *RedisAuditRepo) Insert(ctx context.Context, record *model.AuditRecord) error {
	if record == nil {
		return nil
	}
	payload, err := json.Marshal(record)
	if err != nil {
		return err
	}

	pipe := r.client.Pipeline()
	pipe.LPush(ctx, r.listKey, payload)
	pipe.LTrim(ctx, r.listKey, 0, int64(r.listMax-1))
	_, err = pipe.Exec(ctx)
	return err
}

func (r *RedisAuditRepo) List(ctx context.Context, userID string, limit int, from, to *time.Time) ([]*model.AuditRecord, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	fetch := limit * 5
	if fetch < 100 {
		fetch = 100
	}
	if fetch > r.listMax {
		fetch = r.listMax
	}

	items, err := r.client.LRange(ctx, r.listKey, 0, int64(fetch-1)).Result()
	if err != nil {
		return nil, err
	}

	records := make([]*model.AuditRecord, 0, limit)
	for _, item := range items {
		var record model.AuditRecord
		if err := json.Unmarshal([]byte(item), &record); err != nil {
			continue
		}
		if userID != "" && record.UserID != userID {
			continue
		}
		if from != nil && record.Timestamp.Before(*from) {
			continue
		}
		if to != nil && record.Timestamp.After(*to) {
			continue
		}
		records = append(records, &record)
		if len(records) >= limit {
			break
		}
	}
	return records, nil
}
