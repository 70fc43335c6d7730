package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

const (
	DefaultStorageFileName = ".relay-deposit-history.json"
)

// ErrNotFound is returned for unknown record ids
var ErrNotFound = errors.New("deposit record not found")

func errRequired(field string) error {
	return fmt.Errorf("%s is required", field)
}

// Storage handles persistence of deposit records
type Storage struct {
	filePath string
	mu       sync.RWMutex
	records  map[string]*DepositRecord
}

// historyFile is the JSON structure on disk
type historyFile struct {
	Deposits map[string]*DepositRecord `json:"deposits"`
}

// NewStorage opens the history file, creating it lazily on the first write
func NewStorage(filePath string) (*Storage, error) {
	if filePath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		filePath = filepath.Join(home, DefaultStorageFileName)
	}

	storage := &Storage{
		filePath: filePath,
		records:  make(map[string]*DepositRecord),
	}

	if err := storage.load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}

	return storage, nil
}

func (s *Storage) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.filePath)
	if err != nil {
		return err
	}

	var file historyFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to unmarshal history: %w", err)
	}

	s.records = file.Deposits
	if s.records == nil {
		s.records = make(map[string]*DepositRecord)
	}
	return nil
}

// saveLocked writes every record to disk. Callers hold s.mu.
func (s *Storage) saveLocked() error {
	data, err := json.MarshalIndent(historyFile{Deposits: s.records}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.filePath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	// write then rename so a crash never leaves a truncated file
	tempFile := s.filePath + ".tmp"
	if err := os.WriteFile(tempFile, data, 0600); err != nil {
		return fmt.Errorf("failed to write history: %w", err)
	}
	if err := os.Rename(tempFile, s.filePath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// Create adds a new record
func (s *Storage) Create(record *DepositRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[record.ID]; exists {
		return fmt.Errorf("deposit '%s' already exists", record.ID)
	}
	s.records[record.ID] = record.clone()
	return s.saveLocked()
}

// Get returns a copy of a record
func (s *Storage) Get(id string) (*DepositRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, exists := s.records[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return record.clone(), nil
}

// Update replaces an existing record
func (s *Storage) Update(record *DepositRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[record.ID]; !exists {
		return fmt.Errorf("%w: %s", ErrNotFound, record.ID)
	}
	s.records[record.ID] = record.clone()
	return s.saveLocked()
}

// List returns copies of all records, newest first
func (s *Storage) List() []*DepositRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]*DepositRecord, 0, len(s.records))
	for _, record := range s.records {
		records = append(records, record.clone())
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].Created.After(records[j].Created)
	})
	return records
}

// Count returns the number of records
func (s *Storage) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// GetFilePath returns the storage file path
func (s *Storage) GetFilePath() string {
	return s.filePath
}
