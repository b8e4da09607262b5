package storage

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailbridge/mailbridge/internal/logger"
	"github.com/mailbridge/mailbridge/internal/models"
)

func getLogger() logger.Logger {
	appLogger := logger.NewAppLogger(&logger.Config{
		DevMode: true,
	})
	appLogger.InitLogger()
	return appLogger
}

func newTestStore(t *testing.T) (*LocalStorageService, string) {
	t.Helper()
	dir := t.TempDir()
	return &LocalStorageService{root: dir, log: getLogger()}, dir
}

func TestPersistNamesFilesWithMillisPrefix(t *testing.T) {
	store, dir := newTestStore(t)

	before := time.Now().UnixMilli()
	ref, err := store.Persist(context.Background(), models.AttachmentPayload{
		Filename:    "report.pdf",
		ContentType: "application/pdf",
		Content:     []byte("pdf-bytes"),
	})
	after := time.Now().UnixMilli()

	require.NoError(t, err)
	assert.Equal(t, "report.pdf", ref.Filename)
	assert.Equal(t, int64(9), ref.Size)
	assert.True(t, strings.HasPrefix(ref.ID, "att_"))

	name := filepath.Base(ref.StoragePath)
	prefix, original, found := strings.Cut(name, "_")
	require.True(t, found)
	assert.Equal(t, "report.pdf", original)

	millis, err := strconv.ParseInt(prefix, 10, 64)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, millis, before)
	assert.LessOrEqual(t, millis, after)

	content, err := os.ReadFile(filepath.Join(dir, name))
	require.NoError(t, err)
	assert.Equal(t, []byte("pdf-bytes"), content)
}

func TestPersistSameNameYieldsDistinctFiles(t *testing.T) {
	store, dir := newTestStore(t)
	payload := models.AttachmentPayload{Filename: "invoice.pdf", Content: []byte("v1")}

	first, err := store.Persist(context.Background(), payload)
	require.NoError(t, err)

	// Different instant, same original name.
	time.Sleep(2 * time.Millisecond)

	second, err := store.Persist(context.Background(), payload)
	require.NoError(t, err)

	assert.NotEqual(t, first.StoragePath, second.StoragePath)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestRemoveDeletesStoredFile(t *testing.T) {
	store, _ := newTestStore(t)

	ref, err := store.Persist(context.Background(), models.AttachmentPayload{
		Filename: "gone.txt",
		Content:  []byte("bye"),
	})
	require.NoError(t, err)

	require.NoError(t, store.Remove(context.Background(), *ref))

	_, err = os.Stat(ref.StoragePath)
	assert.True(t, os.IsNotExist(err))
}

func TestSweepDeletesOnlyExpiredFiles(t *testing.T) {
	store, dir := newTestStore(t)

	writeAged := func(name string, age time.Duration) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
		stamp := time.Now().Add(-age)
		require.NoError(t, os.Chtimes(path, stamp, stamp))
		return path
	}

	expired := writeAged("1_old.bin", 8*24*time.Hour)
	fresh := writeAged("2_fresh.bin", 6*24*time.Hour)
	// Just inside the window: strict inequality keeps it.
	nearBoundary := writeAged("3_boundary.bin", 7*24*time.Hour-time.Minute)

	removed, err := store.Sweep(context.Background(), 7)

	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = os.Stat(expired)
	assert.True(t, os.IsNotExist(err))

	_, err = os.Stat(fresh)
	assert.NoError(t, err)

	_, err = os.Stat(nearBoundary)
	assert.NoError(t, err)
}

func TestSweepContinuesPastUndeletableEntries(t *testing.T) {
	store, dir := newTestStore(t)

	// A subdirectory is not a stored attachment; the sweep skips it
	// and still removes expired files.
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested"), 0o755))

	path := filepath.Join(dir, "1_old.bin")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	stamp := time.Now().Add(-30 * 24 * time.Hour)
	require.NoError(t, os.Chtimes(path, stamp, stamp))

	removed, err := store.Sweep(context.Background(), 7)

	require.NoError(t, err)
	assert.Equal(t, 1, removed)
}

func TestEnsureRootCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "attachments")
	store := &LocalStorageService{root: dir, log: getLogger()}

	require.NoError(t, store.EnsureRoot())

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	// Idempotent.
	require.NoError(t, store.EnsureRoot())
}
