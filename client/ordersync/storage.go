package ordersync

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/menumaster/orderstream/internal/domain"
)

// Storage persists sync state between process runs.
type Storage interface {
	// SaveActive persists the tracked order; nil clears it.
	SaveActive(order *domain.OrderSnapshot) error
	SaveHistory(history []domain.OrderSnapshot) error
	SaveLastSync(t time.Time) error
	Load() (active *domain.OrderSnapshot, history []domain.OrderSnapshot, lastSync time.Time, err error)
}

// FileStorage keeps state as JSON files under one directory, keyed by
// outlet so several outlets can share the directory.
type FileStorage struct {
	dir      string
	outletID string
}

func NewFileStorage(dir, outletID string) (*FileStorage, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage dir: %w", err)
	}
	return &FileStorage{dir: dir, outletID: outletID}, nil
}

func (f *FileStorage) activePath() string {
	return filepath.Join(f.dir, "activeOrder-"+f.outletID+".json")
}

func (f *FileStorage) historyPath() string {
	return filepath.Join(f.dir, "orderHistory-"+f.outletID+".json")
}

func (f *FileStorage) lastSyncPath() string {
	return filepath.Join(f.dir, "lastSync-"+f.outletID+".json")
}

func (f *FileStorage) SaveActive(order *domain.OrderSnapshot) error {
	if order == nil {
		err := os.Remove(f.activePath())
		if err != nil && !os.IsNotExist(err) {
			return err
		}
		return nil
	}
	return writeJSON(f.activePath(), order)
}

func (f *FileStorage) SaveHistory(history []domain.OrderSnapshot) error {
	return writeJSON(f.historyPath(), history)
}

func (f *FileStorage) SaveLastSync(t time.Time) error {
	return writeJSON(f.lastSyncPath(), t)
}

func (f *FileStorage) Load() (*domain.OrderSnapshot, []domain.OrderSnapshot, time.Time, error) {
	var active *domain.OrderSnapshot
	var order domain.OrderSnapshot
	ok, err := readJSON(f.activePath(), &order)
	if err != nil {
		return nil, nil, time.Time{}, err
	}
	if ok {
		active = &order
	}

	var history []domain.OrderSnapshot
	if _, err := readJSON(f.historyPath(), &history); err != nil {
		return nil, nil, time.Time{}, err
	}

	var lastSync time.Time
	if _, err := readJSON(f.lastSyncPath(), &lastSync); err != nil {
		return nil, nil, time.Time{}, err
	}

	return active, history, lastSync, nil
}

// writeJSON writes via a temp file and rename so a crash mid-write never
// leaves a truncated state file.
func writeJSON(path string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func readJSON(path string, v interface{}) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("corrupt state file %s: %w", path, err)
	}
	return true, nil
}
