package filelock

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ModificationRecord is one durable entry in the mutation journal. Exactly
// one record is written per attempted mutation, regardless of outcome.
type ModificationRecord struct {
	ID         string    `json:"id"`
	Path       string    `json:"path"`
	Holder     string    `json:"holder"`
	Operation  string    `json:"operation"`
	BackupPath string    `json:"backup_path,omitempty"`
	Success    bool      `json:"success"`
	Error      string    `json:"error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Journal persists modification records to the modification_log table.
type Journal struct {
	db *sql.DB
}

// NewJournal wraps an opened database.
func NewJournal(db *sql.DB) *Journal {
	return &Journal{db: db}
}

// Append inserts a modification record.
func (j *Journal) Append(ctx context.Context, rec ModificationRecord) error {
	if rec.Path == "" {
		return fmt.Errorf("path is empty")
	}
	if rec.Holder == "" {
		return fmt.Errorf("holder is empty")
	}

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	var backup any
	if rec.BackupPath != "" {
		backup = rec.BackupPath
	}
	var errDetail any
	if rec.Error != "" {
		errDetail = rec.Error
	}

	_, err := j.db.ExecContext(ctx, `
INSERT INTO modification_log(id, path, holder, operation, backup_path, success, error, created_at)
VALUES(?, ?, ?, ?, ?, ?, ?, ?);
`, rec.ID, rec.Path, rec.Holder, rec.Operation, backup, rec.Success, errDetail, rec.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("append modification record: %w", err)
	}
	return nil
}

// History returns records for a path, newest first, up to limit.
func (j *Journal) History(ctx context.Context, path string, limit int) ([]ModificationRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := j.db.QueryContext(ctx, `
SELECT id, path, holder, operation, backup_path, success, error, created_at
FROM modification_log
WHERE path = ?
ORDER BY created_at DESC
LIMIT ?;
`, path, limit)
	if err != nil {
		return nil, fmt.Errorf("query modification history: %w", err)
	}
	defer rows.Close()

	var out []ModificationRecord
	for rows.Next() {
		var (
			rec        ModificationRecord
			backup     sql.NullString
			errDetail  sql.NullString
			createdAtS string
		)
		if err := rows.Scan(&rec.ID, &rec.Path, &rec.Holder, &rec.Operation, &backup, &rec.Success, &errDetail, &createdAtS); err != nil {
			return nil, fmt.Errorf("scan modification record: %w", err)
		}
		if backup.Valid {
			rec.BackupPath = backup.String
		}
		if errDetail.Valid {
			rec.Error = errDetail.String
		}
		if t, err := time.Parse(time.RFC3339Nano, createdAtS); err == nil {
			rec.CreatedAt = t
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
