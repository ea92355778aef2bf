package implementation

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"agent-chat-engine/internal/model"
)

// FileSessionRepository keeps the session collection in a single JSON
// file, one file per namespace. Writes go through a temp file plus
// rename so a crash mid-write never corrupts the stored blob.
type FileSessionRepository struct {
	path string
}

func NewFileSessionRepository(dir, namespace string) *FileSessionRepository {
	return &FileSessionRepository{path: filepath.Join(dir, namespace+".json")}
}

func (r *FileSessionRepository) Load(_ context.Context) ([]*model.Session, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []*model.Session{}, nil
		}
		return nil, err
	}
	var sessions []*model.Session
	if err := json.Unmarshal(data, &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

func (r *FileSessionRepository) Save(_ context.Context, sessions []*model.Session) error {
	if err := os.MkdirAll(filepath.Dir(r.path), 0755); err != nil {
		return err
	}
	data, err := json.Marshal(sessions)
	if err != nil {
		return err
	}
	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, r.path)
}
