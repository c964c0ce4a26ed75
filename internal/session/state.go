package session

import (
	"github.com/tradelens/backend/internal/models"
)

// Mode is the backend mode of a session.
type Mode int

const (
	ModeUninitialized Mode = iota
	// ModeConnected reads and writes go to the persistent store.
	ModeConnected
	// ModeDegraded reads and writes go to the fallback cache.
	ModeDegraded
)

func (m Mode) String() string {
	switch m {
	case ModeConnected:
		return "connected"
	case ModeDegraded:
		return "degraded"
	default:
		return "uninitialized"
	}
}

// State is the in-memory projection of the durable tiers. Values returned by
// the controller are copies and may be read freely.
type State struct {
	Mode           Mode
	Files          []models.File
	Analyses       map[string]*models.AnalysisResult
	Chats          map[string][]models.ChatMessage
	SelectedFileID string
	IsAnalyzing    bool
	IsChatting     bool
	LastError      string
}

// StoreReachable reports whether the session talks to the persistent store.
func (s State) StoreReachable() bool {
	return s.Mode == ModeConnected
}

// SelectedFile returns the selected file or nil.
func (s State) SelectedFile() *models.File {
	return s.file(s.SelectedFileID)
}

// DisplayedResult is the analysis of the selected file, if any.
func (s State) DisplayedResult() *models.AnalysisResult {
	if s.SelectedFileID == "" {
		return nil
	}
	return s.Analyses[s.SelectedFileID]
}

// DisplayedHistory is the chat history of the selected file.
func (s State) DisplayedHistory() []models.ChatMessage {
	if s.SelectedFileID == "" {
		return nil
	}
	return s.Chats[s.SelectedFileID]
}

func (s *State) file(id string) *models.File {
	if id == "" {
		return nil
	}
	for i := range s.Files {
		if s.Files[i].ID == id {
			return &s.Files[i]
		}
	}
	return nil
}

func (s *State) clone() State {
	out := *s
	out.Files = append([]models.File(nil), s.Files...)
	out.Analyses = cloneAnalyses(s.Analyses)
	out.Chats = cloneChats(s.Chats)
	return out
}

func cloneAnalyses(in map[string]*models.AnalysisResult) map[string]*models.AnalysisResult {
	out := make(map[string]*models.AnalysisResult, len(in))
	for k, v := range in {
		out[k] = v.Clone()
	}
	return out
}

func cloneChats(in map[string][]models.ChatMessage) map[string][]models.ChatMessage {
	out := make(map[string][]models.ChatMessage, len(in))
	for k, v := range in {
		out[k] = models.CloneMessages(v)
	}
	return out
}
