package models

import (
	"fmt"
	"strings"
	"time"
)

// MaxFileNameLength is the longest file name the store accepts.
const MaxFileNameLength = 255

// File is a user-supplied trading journal. ID is caller-assigned and is the
// join key for analysis results and chat history.
type File struct {
	ID             string    `json:"id" gorm:"primaryKey;size:191"`
	Name           string    `json:"name" gorm:"size:255;not null"`
	MimeType       string    `json:"mimeType" gorm:"size:127"`
	Content        string    `json:"content" gorm:"not null"`
	IsBinary       bool      `json:"isBinary" gorm:"default:false"`
	SizeBytes      *int64    `json:"sizeBytes,omitempty"`
	UploadedAt     time.Time `json:"uploadedAt" gorm:"index"`
	LastAccessedAt time.Time `json:"lastAccessedAt"`
}

func (File) TableName() string {
	return "files"
}

// Validate checks the fields the store requires before insert.
func (f *File) Validate() error {
	if strings.TrimSpace(f.ID) == "" {
		return fmt.Errorf("file id is required")
	}
	if strings.TrimSpace(f.Name) == "" {
		return fmt.Errorf("file name is required")
	}
	if len(f.Name) > MaxFileNameLength {
		return fmt.Errorf("file name exceeds %d characters", MaxFileNameLength)
	}
	if f.Content == "" {
		return fmt.Errorf("file content is required")
	}
	return nil
}
