package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/sio2000/gymUI-sub000/internal/checkin/store"
)

// SubjectDirectory implements store.SubjectDirectory on PostgreSQL.
type SubjectDirectory struct {
	db *sql.DB
}

func NewSubjectDirectory(db *sql.DB) *SubjectDirectory {
	return &SubjectDirectory{db: db}
}

func (d *SubjectDirectory) DisplayName(ctx context.Context, subjectID string) (string, error) {
	var name string
	err := d.db.QueryRowContext(ctx,
		"SELECT display_name FROM subjects WHERE subject_id = $1", subjectID,
	).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", store.ErrSubjectNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get display name: %w", err)
	}
	return name, nil
}
