package cache

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tradelens/backend/internal/models"
	bolt "go.etcd.io/bbolt"
)

func openTestCache(t *testing.T, path string) *Cache {
	t.Helper()
	c, err := Open(path)
	require.NoError(t, err)
	return c
}

func TestLoadFreshCacheIsEmpty(t *testing.T) {
	c := openTestCache(t, filepath.Join(t.TempDir(), "fresh.db"))
	defer c.Close()

	snap, err := c.Load()
	require.NoError(t, err)
	assert.True(t, snap.Empty())
	assert.NotNil(t, snap.Files)
	assert.NotNil(t, snap.Analyses)
	assert.NotNil(t, snap.Chats)

	empty, err := c.IsEmpty()
	require.NoError(t, err)
	assert.True(t, empty)
}

func TestCacheSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fallback.db")
	c := openTestCache(t, path)

	files := []models.File{{ID: "x-1", Name: "x.csv", Content: "...", UploadedAt: time.Now().UTC()}}
	require.NoError(t, c.SaveFiles(files))
	require.NoError(t, c.SaveAnalyses(map[string]*models.AnalysisResult{
		"x-1": {FileID: "x-1", MarkdownReport: "# Report", ChartData: &models.ChartData{}},
	}))
	require.NoError(t, c.SaveChats(map[string][]models.ChatMessage{
		"x-1": {{Role: models.RoleUser, Text: "q"}, {Role: models.RoleModel, Text: "a"}},
	}))
	require.NoError(t, c.Close())

	c = openTestCache(t, path)
	defer c.Close()
	snap, err := c.Load()
	require.NoError(t, err)
	require.Len(t, snap.Files, 1)
	assert.Equal(t, "x-1", snap.Files[0].ID)
	require.Contains(t, snap.Analyses, "x-1")
	assert.Equal(t, "# Report", snap.Analyses["x-1"].MarkdownReport)
	assert.NotNil(t, snap.Analyses["x-1"].ChartData.HourlyPnL)
	assert.Len(t, snap.Chats["x-1"], 2)
	assert.Equal(t, models.RoleModel, snap.Chats["x-1"][1].Role)
}

func TestSaveAndClear(t *testing.T) {
	c := openTestCache(t, filepath.Join(t.TempDir(), "fallback.db"))
	defer c.Close()

	require.NoError(t, c.Save(&Snapshot{
		Files:    []models.File{{ID: "a"}, {ID: "b"}},
		Analyses: nil,
		Chats:    nil,
	}))
	empty, err := c.IsEmpty()
	require.NoError(t, err)
	assert.False(t, empty)

	snap, err := c.Load()
	require.NoError(t, err)
	assert.Len(t, snap.Files, 2)
	assert.NotNil(t, snap.Analyses)

	require.NoError(t, c.Clear())
	require.NoError(t, c.Clear())
	empty, err = c.IsEmpty()
	require.NoError(t, err)
	assert.True(t, empty)
}

func TestCorruptEntryLoadsEmpty(t *testing.T) {
	c := openTestCache(t, filepath.Join(t.TempDir(), "fallback.db"))
	defer c.Close()

	require.NoError(t, c.SaveFiles([]models.File{{ID: "keep"}}))
	require.NoError(t, c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketFallback).Put(keyAnalyses, []byte("{not json"))
	}))

	snap, err := c.Load()
	require.NoError(t, err)
	assert.Len(t, snap.Files, 1)
	assert.Empty(t, snap.Analyses)
}
