package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ledgergate/ledgergate/internal/model"
	"github.com/ledgergate/ledgergate/internal/pkg/logger"
)

// PostgresAuditRepo is the append-only audit collection: inserts only, no
// update or delete paths.
type PostgresAuditRepo struct {
	db *sqlx.DB
}

func NewPostgresAuditRepo(db *sqlx.DB) *PostgresAuditRepo {
	repo := &PostgresAuditRepo{db: db}
	if err := repo.ensureSchema(context.Background()); err != nil {
		logger.Warn("failed to ensure audit schema", "error", err)
	}
	return repo
}

func (r *PostgresAuditRepo) ensureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS audit_records (
			id         TEXT PRIMARY KEY,
			action     TEXT        NOT NULL,
			user_id    TEXT,
			ip         TEXT        NOT NULL,
			user_agent TEXT        NOT NULL,
			details    JSONB,
			status     TEXT        NOT NULL,
			timestamp  TIMESTAMPTZ NOT NULL
		)
	`)
	return err
}

func (r *PostgresAuditRepo) Insert(ctx context.Context, record *model.AuditRecord) error {
	if record == nil {
		return nil
	}
	detailsJSON, _ := json.Marshal(record.Details)
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO audit_records (
			id, action, user_id, ip, user_agent, details, status, timestamp
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (id) DO NOTHING
	`, record.ID, record.Action, record.UserID, record.IP, record.UserAgent,
		detailsJSON, record.Status, record.Timestamp)
	return err
}

func (r *PostgresAuditRepo) List(ctx context.Context, userID string, limit int, from, to *time.Time) ([]*model.AuditRecord, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	query := `SELECT id, action, user_id, ip, user_agent, details, status, timestamp FROM audit_records`
	clauses := []string{}
	args := []interface{}{}
	idx := 1

	if userID != "" {
		clauses = append(clauses, fmt.Sprintf("user_id = $%d", idx))
		args = append(args, userID)
		idx++
	}
	if from != nil {
		clauses = append(clauses, fmt.Sprintf("timestamp >= $%d", idx))
		args = append(args, *from)
		idx++
	}
	if to != nil {
		clauses = append(clauses, fmt.Sprintf("timestamp <= $%d", idx))
		args = append(args, *to)
		idx++
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY timestamp DESC LIMIT $%d", idx)
	args = append(args, limit)

	rows, err := r.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]*model.AuditRecord, 0, limit)
	for rows.Next() {
		var record model.AuditRecord
		var detailsJSON []byte
		if err := rows.Scan(
			&record.ID, &record.Action, &record.UserID, &record.IP,
			&record.UserAgent, &detailsJSON, &record.Status, &record.Timestamp,
		); err != nil {
			return nil, err
		}
		if len(detailsJSON) > 0 {
			if err := json.Unmarshal(detailsJSON, &record.Details); err != nil {
				record.Details = map[string]any{"raw": string(detailsJSON)}
			}
		}
		records = append(records, &record)
	}
	return records, rows.Err()
}
