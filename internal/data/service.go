// Package data keeps per-gateway tables loaded from CSV files. It is an
// import/export aid; nothing in the trading path reads it.
package data

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	exchange "multiaccount-trade/pkg/exchanges/common"
)

var (
	ErrNoFilePath = errors.New("no file path registered for gateway")
	ErrNoData     = errors.New("no data loaded for gateway")
)

// Logger receives the component's log lines. Implemented by events.Bus.
type Logger interface {
	Log(gatewayName, msg string, level exchange.Severity)
}

// Service is the surface the engine exposes for tabular data.
type Service interface {
	LoadDir() string
	BackupDir() string

	AddLoadFile(gatewayName, fileName string)
	LoadFile(gatewayName string) (string, bool)
	DeleteLoadFile(gatewayName string) error

	AddBackupFile(gatewayName, fileName string)
	BackupFile(gatewayName string) (string, bool)
	DeleteBackupFile(gatewayName string) error

	AddData(gatewayName string, t *Table)
	Data(gatewayName string) (*Table, bool)
	LoadData(gatewayName string) (*Table, error)
	DeleteData(gatewayName string)
	BackupData(gatewayName string) error

	Close() error
}

// Store is the file-backed Service.
type Store struct {
	loadDir   string
	backupDir string
	log       Logger

	mu          sync.RWMutex
	loadFiles   map[string]string
	backupFiles map[string]string
	tables      map[string]*Table
}

var _ Service = (*Store)(nil)

// NewStore creates both directories if they are missing.
func NewStore(loadDir, backupDir string, logger Logger) (*Store, error) {
	for _, dir := range []string{loadDir, backupDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir %s: %w", dir, err)
		}
	}
	return &Store{
		loadDir:     loadDir,
		backupDir:   backupDir,
		log:         logger,
		loadFiles:   make(map[string]string),
		backupFiles: make(map[string]string),
		tables:      make(map[string]*Table),
	}, nil
}

func (s *Store) LoadDir() string   { return s.loadDir }
func (s *Store) BackupDir() string { return s.backupDir }

// AddLoadFile records fileName, relative to the load dir, as the gateway's source file.
func (s *Store) AddLoadFile(gatewayName, fileName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadFiles[gatewayName] = filepath.Join(s.loadDir, fileName)
}

func (s *Store) LoadFile(gatewayName string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.loadFiles[gatewayName]
	return p, ok
}

func (s *Store) DeleteLoadFile(gatewayName string) error {
	p, ok := s.LoadFile(gatewayName)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoFilePath, gatewayName)
	}
	return removeIfExists(p)
}

// AddBackupFile records fileName, relative to the backup dir, as the gateway's backup file.
func (s *Store) AddBackupFile(gatewayName, fileName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.backupFiles[gatewayName] = filepath.Join(s.backupDir, fileName)
}

func (s *Store) BackupFile(gatewayName string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.backupFiles[gatewayName]
	return p, ok
}

func (s *Store) DeleteBackupFile(gatewayName string) error {
	p, ok := s.BackupFile(gatewayName)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoFilePath, gatewayName)
	}
	return removeIfExists(p)
}

func (s *Store) AddData(gatewayName string, t *Table) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables[gatewayName] = t
}

func (s *Store) Data(gatewayName string) (*Table, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tables[gatewayName]
	return t, ok
}

// LoadData reads the gateway's backup file when it exists, otherwise its load
// file, and keeps the result in memory.
func (s *Store) LoadData(gatewayName string) (*Table, error) {
	path, ok := s.BackupFile(gatewayName)
	if !ok || !exists(path) {
		path, ok = s.LoadFile(gatewayName)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrNoFilePath, gatewayName)
		}
	}

	t, err := readFile(path)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", gatewayName, err)
	}
	s.AddData(gatewayName, t)

	if s.log != nil {
		s.log.Log(gatewayName, "Data loaded", exchange.SeverityInfo)
	}
	return t, nil
}

func (s *Store) DeleteData(gatewayName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tables, gatewayName)
}

// BackupData writes the in-memory table to the gateway's backup file.
func (s *Store) BackupData(gatewayName string) error {
	t, ok := s.Data(gatewayName)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoData, gatewayName)
	}
	path, ok := s.BackupFile(gatewayName)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoFilePath, gatewayName)
	}
	if err := writeFile(path, t); err != nil {
		return fmt.Errorf("backup %s: %w", gatewayName, err)
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables = make(map[string]*Table)
	return nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
