package statestore

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/example/ridelink/internal/ride/domain"
)

// FileStore keeps the slot in a single JSON file, for clients that run
// without Redis. Writes go through a temp file rename so a crash mid-save
// leaves either the old record or the new one, never a torn file.
type FileStore struct {
	path   string
	logger *zap.Logger
}

// NewFileStore constructs the store.
func NewFileStore(path string, logger *zap.Logger) *FileStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileStore{path: path, logger: logger}
}

// Save overwrites the slot.
func (s *FileStore) Save(_ context.Context, record domain.RideRecord) {
	payload, err := json.Marshal(record)
	if err != nil {
		s.logger.Warn("encode ride state", zap.Error(err))
		return
	}
	tmp := s.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		s.logger.Warn("save ride state", zap.Error(err))
		return
	}
	if err := os.WriteFile(tmp, payload, 0o600); err != nil {
		s.logger.Warn("save ride state", zap.Error(err))
		return
	}
	if err := os.Rename(tmp, s.path); err != nil {
		s.logger.Warn("save ride state", zap.Error(err))
	}
}

// Load returns the last saved record; a missing or corrupt file is a miss.
func (s *FileStore) Load(_ context.Context) (*domain.RideRecord, bool) {
	payload, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("load ride state", zap.Error(err))
		}
		return nil, false
	}
	var record domain.RideRecord
	if err := json.Unmarshal(payload, &record); err != nil {
		s.logger.Warn("decode ride state", zap.Error(err))
		return nil, false
	}
	return &record, true
}

// Clear empties the slot.
func (s *FileStore) Clear(_ context.Context) {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("clear ride state", zap.Error(err))
	}
}
