package store

import (
	"context"
	"errors"
)

var ErrSubjectNotFound = errors.New("subject not found")

// SubjectDirectory resolves member display names for grant decisions.
type SubjectDirectory interface {
	DisplayName(ctx context.Context, subjectID string) (string, error)
}
