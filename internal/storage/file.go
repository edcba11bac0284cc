package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"notifyd/pkg/logx"
)

// tailSize bounds the in-memory history kept for RecentDeliveries.
const tailSize = 200

// fileStore appends records to a JSON Lines file and keeps a bounded tail in
// memory so reads don't re-scan the file.
type fileStore struct {
	log logx.Logger

	mu   sync.Mutex
	file *os.File
	tail []DeliveryRecord
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	tail, err := loadTail(path, tailSize)
	if err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	log.Debug("delivery history opened", logx.String("path", path), logx.Int("loaded", len(tail)))
	return &fileStore{log: log, file: f, tail: tail}, nil
}

func (s *fileStore) AppendDelivery(ctx context.Context, rec DeliveryRecord) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return errors.New("history file closed")
	}
	if err := json.NewEncoder(s.file).Encode(rec); err != nil {
		return err
	}
	s.tail = append(s.tail, rec)
	if len(s.tail) > tailSize {
		s.tail = s.tail[len(s.tail)-tailSize:]
	}
	return nil
}

func (s *fileStore) RecentDeliveries(ctx context.Context, n int) ([]DeliveryRecord, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if n <= 0 || n > len(s.tail) {
		n = len(s.tail)
	}
	out := make([]DeliveryRecord, n)
	copy(out, s.tail[len(s.tail)-n:])
	return out, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

// loadTail scans an existing history file and keeps the last max records.
// Malformed lines (partial writes) are skipped.
func loadTail(path string, max int) ([]DeliveryRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var tail []DeliveryRecord
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		var rec DeliveryRecord
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			continue
		}
		tail = append(tail, rec)
		if len(tail) > max {
			tail = tail[len(tail)-max:]
		}
	}
	return tail, sc.Err()
}
