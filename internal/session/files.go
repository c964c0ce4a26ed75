package session

import (
	"encoding/base64"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"time"
	"unicode/utf8"

	"github.com/tradelens/backend/internal/models"
)

// NewFileID derives a file id from its name and upload time.
func NewFileID(name string, t time.Time) string {
	return fmt.Sprintf("%s-%d", name, t.UnixMilli())
}

// NewFileFromPath reads a journal from disk. Content that is not valid UTF-8
// is stored base64 encoded.
func NewFileFromPath(path string, now time.Time) (*models.File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	name := filepath.Base(path)
	size := int64(len(data))

	f := &models.File{
		ID:             NewFileID(name, now),
		Name:           name,
		MimeType:       detectMimeType(name, data),
		SizeBytes:      &size,
		UploadedAt:     now,
		LastAccessedAt: now,
	}
	if utf8.Valid(data) {
		f.Content = string(data)
	} else {
		f.IsBinary = true
		f.Content = base64.StdEncoding.EncodeToString(data)
	}
	return f, nil
}

func detectMimeType(name string, data []byte) string {
	t := mime.TypeByExtension(filepath.Ext(name))
	if t == "" {
		t = http.DetectContentType(data)
	}
	if mt, _, err := mime.ParseMediaType(t); err == nil {
		return mt
	}
	return t
}
