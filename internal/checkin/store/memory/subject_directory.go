package memory

import (
	"context"
	"sync"

	"github.com/sio2000/gymUI-sub000/internal/checkin/store"
)

type SubjectDirectory struct {
	mu    sync.RWMutex
	names map[string]string
}

func NewSubjectDirectory(names map[string]string) *SubjectDirectory {
	d := &SubjectDirectory{names: make(map[string]string, len(names))}
	for id, n := range names {
		d.names[id] = n
	}
	return d
}

func (d *SubjectDirectory) Set(subjectID, name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.names[subjectID] = name
}

func (d *SubjectDirectory) DisplayName(_ context.Context, subjectID string) (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	n, ok := d.names[subjectID]
	if !ok {
		return "", store.ErrSubjectNotFound
	}
	return n, nil
}
