// Package cache is the degraded-mode tier: a bbolt file holding the files
// list, the analysis map and the chat map as three JSON blobs. It is read at
// startup when the store is unreachable and drained by the one-time
// migration once the store is back.
package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/tradelens/backend/internal/logger"
	"github.com/tradelens/backend/internal/models"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketFallback = []byte("fallback")
	keyFiles       = []byte("files")
	keyAnalyses    = []byte("analyses")
	keyChats       = []byte("chats")
)

// Snapshot is the full content of the cache.
type Snapshot struct {
	Files    []models.File
	Analyses map[string]*models.AnalysisResult
	Chats    map[string][]models.ChatMessage
}

// Empty reports whether the snapshot holds no data at all.
func (s *Snapshot) Empty() bool {
	return len(s.Files) == 0 && len(s.Analyses) == 0 && len(s.Chats) == 0
}

type Cache struct {
	db *bolt.DB
}

// Open opens (or creates) the cache file at path.
func Open(path string) (*Cache, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create cache dir: %w", err)
		}
	}
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("bbolt open: %w", err)
	}
	return &Cache{db: db}, nil
}

func (c *Cache) Close() error {
	return c.db.Close()
}

func (c *Cache) put(key []byte, v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return c.db.Update(func(tx *bolt.Tx) error {
		bk, err := tx.CreateBucketIfNotExists(bucketFallback)
		if err != nil {
			return err
		}
		return bk.Put(key, b)
	})
}

func (c *Cache) SaveFiles(files []models.File) error {
	if files == nil {
		files = []models.File{}
	}
	return c.put(keyFiles, files)
}

func (c *Cache) SaveAnalyses(analyses map[string]*models.AnalysisResult) error {
	if analyses == nil {
		analyses = map[string]*models.AnalysisResult{}
	}
	return c.put(keyAnalyses, analyses)
}

func (c *Cache) SaveChats(chats map[string][]models.ChatMessage) error {
	if chats == nil {
		chats = map[string][]models.ChatMessage{}
	}
	return c.put(keyChats, chats)
}

// Save writes all three blobs in one transaction.
func (c *Cache) Save(s *Snapshot) error {
	blobs := map[string]interface{}{
		string(keyFiles):    s.Files,
		string(keyAnalyses): s.Analyses,
		string(keyChats):    s.Chats,
	}
	encoded := make(map[string][]byte, len(blobs))
	for k, v := range blobs {
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", k, err)
		}
		encoded[k] = b
	}
	return c.db.Update(func(tx *bolt.Tx) error {
		bk, err := tx.CreateBucketIfNotExists(bucketFallback)
		if err != nil {
			return err
		}
		for k, b := range encoded {
			if err := bk.Put([]byte(k), b); err != nil {
				return err
			}
		}
		return nil
	})
}

// Load returns the cached data. Missing keys load as empty collections; a
// blob that no longer decodes is logged and treated as empty.
func (c *Cache) Load() (*Snapshot, error) {
	var filesJSON, analysesJSON, chatsJSON []byte

	err := c.db.View(func(tx *bolt.Tx) error {
		bk := tx.Bucket(bucketFallback)
		if bk == nil {
			return nil
		}
		// bbolt slices are only valid inside the transaction
		filesJSON = copyBytes(bk.Get(keyFiles))
		analysesJSON = copyBytes(bk.Get(keyAnalyses))
		chatsJSON = copyBytes(bk.Get(keyChats))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("bbolt view: %w", err)
	}

	snap := &Snapshot{
		Files:    decode(keyFiles, filesJSON, []models.File{}),
		Analyses: decode(keyAnalyses, analysesJSON, map[string]*models.AnalysisResult{}),
		Chats:    decode(keyChats, chatsJSON, map[string][]models.ChatMessage{}),
	}

	for id, r := range snap.Analyses {
		if r == nil {
			delete(snap.Analyses, id)
			continue
		}
		r.ChartData = r.ChartData.Normalize()
		if r.SuggestedQuestions == nil {
			r.SuggestedQuestions = []string{}
		}
	}
	return snap, nil
}

// IsEmpty reports whether the cache holds no files, analyses or chats.
func (c *Cache) IsEmpty() (bool, error) {
	snap, err := c.Load()
	if err != nil {
		return false, err
	}
	return snap.Empty(), nil
}

// Clear removes all cached data.
func (c *Cache) Clear() error {
	return c.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketFallback) == nil {
			return nil
		}
		return tx.DeleteBucket(bucketFallback)
	})
}

func copyBytes(v []byte) []byte {
	if v == nil {
		return nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out
}

func decode[T any](key, data []byte, empty T) T {
	if len(data) == 0 || string(data) == "null" {
		return empty
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		logger.Warn("Discarding unreadable fallback cache entry", map[string]interface{}{
			"key":   string(key),
			"error": err.Error(),
		})
		return empty
	}
	return v
}
