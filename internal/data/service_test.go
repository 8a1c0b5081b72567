package data

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	exchange "multiaccount-trade/pkg/exchanges/common"
)

type recordingLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *recordingLogger) Log(gatewayName, msg string, _ exchange.Severity) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, gatewayName+": "+msg)
}

func newStore(t *testing.T) (*Store, *recordingLogger) {
	t.Helper()
	root := t.TempDir()
	logger := &recordingLogger{}
	s, err := NewStore(filepath.Join(root, "orders"), filepath.Join(root, "backup"), logger)
	require.NoError(t, err)
	return s, logger
}

func TestNewStoreCreatesDirs(t *testing.T) {
	s, _ := newStore(t)
	for _, dir := range []string{s.LoadDir(), s.BackupDir()} {
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}

func TestLoadDataPrefersBackup(t *testing.T) {
	s, logger := newStore(t)
	s.AddLoadFile("G1", "g1.csv")
	s.AddBackupFile("G1", "g1.csv")

	loadPath, _ := s.LoadFile("G1")
	require.NoError(t, os.WriteFile(loadPath, []byte("symbol,volume\nrb2410,1\n"), 0o644))

	tbl, err := s.LoadData("G1")
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, tbl.Column("volume"))

	backupPath, _ := s.BackupFile("G1")
	require.NoError(t, os.WriteFile(backupPath, []byte("symbol,volume\nrb2410,7\nau2412,2\n"), 0o644))

	tbl, err = s.LoadData("G1")
	require.NoError(t, err)
	assert.Equal(t, 2, tbl.Len())
	assert.Equal(t, []string{"7", "2"}, tbl.Column("volume"))

	cached, ok := s.Data("G1")
	require.True(t, ok)
	assert.Same(t, tbl, cached)
	assert.Equal(t, []string{"G1: Data loaded", "G1: Data loaded"}, logger.lines)
}

func TestBackupRoundTrip(t *testing.T) {
	s, _ := newStore(t)
	s.AddBackupFile("G1", "g1.csv")
	s.AddData("G1", &Table{
		Header: []string{"symbol", "note"},
		Rows:   []Row{{"symbol": "rb2410", "note": "has, comma"}, {"symbol": "au2412"}},
	})
	require.NoError(t, s.BackupData("G1"))

	path, _ := s.BackupFile("G1")
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(raw), "symbol,note\n"))

	s.DeleteData("G1")
	_, ok := s.Data("G1")
	assert.False(t, ok)

	tbl, err := s.LoadData("G1")
	require.NoError(t, err)
	assert.Equal(t, "has, comma", tbl.Rows[0]["note"])
	assert.Equal(t, "", tbl.Rows[1]["note"])
}

func TestStoreErrors(t *testing.T) {
	s, _ := newStore(t)

	_, err := s.LoadData("G9")
	assert.ErrorIs(t, err, ErrNoFilePath)
	assert.ErrorIs(t, s.BackupData("G9"), ErrNoData)
	assert.ErrorIs(t, s.DeleteLoadFile("G9"), ErrNoFilePath)

	s.AddData("G9", &Table{})
	assert.ErrorIs(t, s.BackupData("G9"), ErrNoFilePath)

	s.AddLoadFile("G9", "missing.csv")
	_, err = s.LoadData("G9")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestDeleteFiles(t *testing.T) {
	s, _ := newStore(t)
	s.AddLoadFile("G1", "g1.csv")
	s.AddBackupFile("G1", "g1.csv")
	loadPath, _ := s.LoadFile("G1")
	backupPath, _ := s.BackupFile("G1")
	require.NoError(t, os.WriteFile(loadPath, []byte("a\n"), 0o644))
	require.NoError(t, os.WriteFile(backupPath, []byte("a\n"), 0o644))

	require.NoError(t, s.DeleteLoadFile("G1"))
	require.NoError(t, s.DeleteBackupFile("G1"))
	require.NoError(t, s.DeleteBackupFile("G1"))

	assert.NoFileExists(t, loadPath)
	assert.NoFileExists(t, backupPath)
}

func TestReadCSVEmpty(t *testing.T) {
	tbl, err := ReadCSV(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, 0, tbl.Len())
}
