// /internal/storage/storage.go
package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/keshon/datastore"
	"github.com/rs/zerolog"
)

const (
	dispatchHistoryLimit = 20
	autoSaveInterval     = 30 * time.Second
)

// Dispatch outcomes.
const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

type Storage struct {
	ds     *datastore.DataStore
	cancel context.CancelFunc
	// serializes read-modify-write of a bot record
	mu sync.Mutex
}

// DispatchRecord is one audit entry of a program dispatch.
type DispatchRecord struct {
	ID        string    `json:"id"`
	Program   string    `json:"program"`
	Kind      string    `json:"kind"`
	ChannelID string    `json:"channel_id"`
	Trigger   string    `json:"trigger"`
	AuthorID  string    `json:"author_id,omitempty"`
	Started   time.Time `json:"started"`
	Finished  time.Time `json:"finished"`
	Status    string    `json:"status"`
	Error     string    `json:"error,omitempty"`
}

type Record struct {
	Dispatches []DispatchRecord `json:"dispatches"`
}

// New opens the datastore file, creating it and its directory when missing.
// The autosave loop runs until ctx is done or Close is called.
func New(ctx context.Context, filePath string, log zerolog.Logger) (*Storage, error) {
	if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}
	ctx, cancel := context.WithCancel(ctx)
	ds, err := datastore.New(ctx, filePath,
		datastore.WithSaveInterval(autoSaveInterval),
		datastore.WithLogger(slog.New(zerolog.NewSlogHandler(log.With().Str("component", "datastore").Logger()))),
	)
	if err != nil {
		cancel()
		return nil, err
	}
	return &Storage{ds: ds, cancel: cancel}, nil
}

// Close stops the autosave loop and flushes to disk.
func (s *Storage) Close() error {
	s.cancel()
	return s.ds.Close()
}

func botKey(bot string) string {
	return "bot:" + bot
}

func (s *Storage) botRecord(bot string) (Record, error) {
	var record Record
	if _, err := s.ds.Get(botKey(bot), &record); err != nil {
		return Record{}, err
	}
	return record, nil
}

// RecordDispatch appends a dispatch record to a bot's history, keeping the
// most recent entries only.
func (s *Storage) RecordDispatch(bot string, rec DispatchRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, err := s.botRecord(bot)
	if err != nil {
		return err
	}

	record.Dispatches = append(record.Dispatches, rec)
	if len(record.Dispatches) > dispatchHistoryLimit {
		record.Dispatches = record.Dispatches[len(record.Dispatches)-dispatchHistoryLimit:]
	}
	return s.ds.Set(botKey(bot), record)
}

// Dispatches returns a bot's dispatch history, oldest first.
func (s *Storage) Dispatches(bot string) ([]DispatchRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, err := s.botRecord(bot)
	if err != nil {
		return nil, err
	}
	return record.Dispatches, nil
}
