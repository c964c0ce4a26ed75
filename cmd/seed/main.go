package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/tradelens/backend/internal/config"
	"github.com/tradelens/backend/internal/db"
	"github.com/tradelens/backend/internal/logger"
	"github.com/tradelens/backend/internal/models"
	"github.com/tradelens/backend/internal/session"
	"github.com/tradelens/backend/internal/store"
)

// JournalData is one sample journal in the seed file
type JournalData struct {
	Name     string `json:"name"`
	MimeType string `json:"mimeType"`
	Content  string `json:"content"`
}

// JSONData represents the structure of the seed file
type JSONData struct {
	Journals []JournalData `json:"journals"`
}

// builtinJournals is used when no seed file is present.
var builtinJournals = []JournalData{
	{
		Name:     "sample-week.csv",
		MimeType: "text/csv",
		Content: "date,time,symbol,side,qty,entry,exit,pnl\n" +
			"2024-05-06,09:31,ES,long,1,5120.25,5122.75,125.00\n" +
			"2024-05-06,10:05,NQ,short,1,17890.50,17894.50,-80.00\n" +
			"2024-05-07,09:45,ES,long,2,5131.00,5129.50,-150.00\n" +
			"2024-05-08,13:20,CL,long,1,78.40,78.82,420.00\n" +
			"2024-05-09,09:35,ES,short,1,5188.00,5184.25,187.50\n" +
			"2024-05-10,15:40,NQ,long,1,18120.00,18101.00,-380.00\n",
	},
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Invalid configuration", map[string]interface{}{"error": err.Error()})
	}
	logger.Initialize(logger.Options{Level: cfg.LogLevel})

	database, err := db.Open(cfg)
	if err != nil {
		logger.Fatal("Failed to connect to database", map[string]interface{}{"error": err.Error()})
	}
	defer database.Close()

	if err := database.AutoMigrate(); err != nil {
		logger.Fatal("Migration failed", map[string]interface{}{"error": err.Error()})
	}

	journals, err := loadJournals("data/sample-journals.json")
	if err != nil {
		logger.Warn("Using built-in sample journal", map[string]interface{}{"reason": err.Error()})
		journals = builtinJournals
	}

	if err := seedJournals(context.Background(), store.NewDBStore(database), journals); err != nil {
		logger.Fatal("Seeding failed", map[string]interface{}{"error": err.Error()})
	}
	logger.Info("Database seeding completed successfully", nil)
}

func loadJournals(path string) ([]JournalData, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var jsonData JSONData
	if err := json.Unmarshal(data, &jsonData); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return jsonData.Journals, nil
}

func seedJournals(ctx context.Context, s store.Store, journals []JournalData) error {
	existing, err := s.ListFiles(ctx)
	if err != nil {
		return err
	}
	seen := make(map[string]bool, len(existing))
	for _, f := range existing {
		seen[f.Name] = true
	}

	now := time.Now().UTC()
	for i, j := range journals {
		if seen[j.Name] {
			logger.Info("Journal already exists", map[string]interface{}{"name": j.Name})
			continue
		}
		uploaded := now.Add(time.Duration(i) * time.Millisecond)
		f := &models.File{
			ID:         session.NewFileID(j.Name, uploaded),
			Name:       j.Name,
			MimeType:   j.MimeType,
			Content:    j.Content,
			UploadedAt: uploaded,
		}
		if err := s.PutFile(ctx, f); err != nil {
			logger.Error("Error creating journal", map[string]interface{}{"name": j.Name, "error": err.Error()})
			continue
		}
		logger.Info("Created journal", map[string]interface{}{"id": f.ID})
	}
	return nil
}
