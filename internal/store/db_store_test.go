package store

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tradelens/backend/internal/db"
	"github.com/tradelens/backend/internal/models"
)

func newTestStore(t *testing.T) *DBStore {
	t.Helper()
	d, err := db.OpenSQLite(filepath.Join(t.TempDir(), "store.db"), nil)
	require.NoError(t, err)
	require.NoError(t, d.AutoMigrate())
	t.Cleanup(func() { d.Close() })
	return NewDBStore(d)
}

func testFile(id string, uploaded time.Time) *models.File {
	return &models.File{
		ID:         id,
		Name:       id + ".csv",
		MimeType:   "text/csv",
		Content:    "time,symbol,pnl\n09:30,ES,125.50\n",
		UploadedAt: uploaded,
	}
}

func TestPutFileAndList(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	require.NoError(t, s.PutFile(ctx, testFile("old-1", base)))
	require.NoError(t, s.PutFile(ctx, &models.File{ID: "a-1", Name: "a.csv", Content: "...", UploadedAt: base.Add(time.Hour)}))

	files, err := s.ListFiles(ctx)
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "a-1", files[0].ID, "most recent upload first")
	assert.Equal(t, "old-1", files[1].ID)
	assert.Equal(t, files[0].UploadedAt.Unix(), files[0].LastAccessedAt.Unix())

	got, err := s.GetFile(ctx, "a-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "a.csv", got.Name)

	missing, err := s.GetFile(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestPutFileRejectsDuplicateAndInvalid(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	f := testFile("dup-1", time.Now())
	require.NoError(t, s.PutFile(ctx, f))

	err := s.PutFile(ctx, testFile("dup-1", time.Now()))
	assert.ErrorIs(t, err, ErrDuplicateKey)
	assert.ErrorIs(t, err, ErrIntegrity)

	long := testFile("long-1", time.Now())
	long.Name = fmt.Sprintf("%0256d", 0)
	assert.ErrorIs(t, s.PutFile(ctx, long), ErrInvalid)

	empty := testFile("empty-1", time.Now())
	empty.Content = ""
	assert.ErrorIs(t, s.PutFile(ctx, empty), ErrInvalid)
}

func TestDeleteFileIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.PutFile(ctx, testFile("keep-1", time.Now())))

	require.NoError(t, s.DeleteFile(ctx, "does-not-exist"))
	require.NoError(t, s.DeleteFile(ctx, "does-not-exist"))

	files, err := s.ListFiles(ctx)
	require.NoError(t, err)
	assert.Len(t, files, 1)
}

func TestDeleteFileCascades(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"f-1", "f-2"} {
		require.NoError(t, s.PutFile(ctx, testFile(id, time.Now())))
		_, err := s.PutAnalysis(ctx, id, &models.AnalysisResult{MarkdownReport: "# " + id}, 10)
		require.NoError(t, err)
		require.NoError(t, s.ReplaceChatHistory(ctx, id, []models.ChatMessage{
			{Role: models.RoleUser, Text: "q"},
			{Role: models.RoleModel, Text: "a"},
		}))
	}

	require.NoError(t, s.DeleteFile(ctx, "f-1"))

	a, err := s.GetLatestAnalysis(ctx, "f-1")
	require.NoError(t, err)
	assert.Nil(t, a)
	h, err := s.GetChatHistory(ctx, "f-1")
	require.NoError(t, err)
	assert.Empty(t, h)

	a, err = s.GetLatestAnalysis(ctx, "f-2")
	require.NoError(t, err)
	require.NotNil(t, a)
	h, err = s.GetChatHistory(ctx, "f-2")
	require.NoError(t, err)
	assert.Len(t, h, 2)
}

func TestLatestAnalysisWins(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.PutFile(ctx, testFile("f-1", time.Now())))
	require.NoError(t, s.PutFile(ctx, testFile("f-2", time.Now())))

	charts := &models.ChartData{
		HourlyPnL: []models.HourlyPnL{{Hour: 9, PnL: decimal.RequireFromString("125.5"), Trades: 3}},
	}
	id1, err := s.PutAnalysis(ctx, "f-1", &models.AnalysisResult{MarkdownReport: "first"}, 100)
	require.NoError(t, err)
	id2, err := s.PutAnalysis(ctx, "f-1", &models.AnalysisResult{
		MarkdownReport:     "second",
		ChartData:          charts,
		SuggestedQuestions: []string{"Why do Mondays lose?"},
	}, 200)
	require.NoError(t, err)
	assert.Greater(t, id2, id1)
	_, err = s.PutAnalysis(ctx, "f-2", &models.AnalysisResult{MarkdownReport: "other"}, 50)
	require.NoError(t, err)

	latest, err := s.GetLatestAnalysis(ctx, "f-1")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "second", latest.MarkdownReport)
	assert.Equal(t, int64(200), latest.ProcessingTimeMs)
	assert.Equal(t, []string{"Why do Mondays lose?"}, latest.SuggestedQuestions)
	require.NotNil(t, latest.ChartData)
	require.Len(t, latest.ChartData.HourlyPnL, 1)
	assert.True(t, latest.ChartData.HourlyPnL[0].PnL.Equal(decimal.RequireFromString("125.5")))
	assert.NotNil(t, latest.ChartData.EquityCurve, "missing series load as empty arrays")

	all, err := s.ListAllLatestAnalyses(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "second", all["f-1"].MarkdownReport)
	assert.Equal(t, "other", all["f-2"].MarkdownReport)
	assert.Nil(t, all["f-2"].ChartData)

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.FileCount)
	assert.Equal(t, int64(3), stats.AnalysisCount, "history is retained")
}

func TestLatestAnalysisOrdersByAnalyzedAt(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.PutFile(ctx, testFile("f-1", time.Now())))
	base := time.Date(2024, 5, 6, 16, 0, 0, 0, time.UTC)

	_, err := s.PutAnalysis(ctx, "f-1", &models.AnalysisResult{MarkdownReport: "newer", AnalyzedAt: base.Add(time.Hour)}, 10)
	require.NoError(t, err)
	// inserted later but analyzed earlier
	_, err = s.PutAnalysis(ctx, "f-1", &models.AnalysisResult{MarkdownReport: "older", AnalyzedAt: base}, 10)
	require.NoError(t, err)

	latest, err := s.GetLatestAnalysis(ctx, "f-1")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "newer", latest.MarkdownReport)

	all, err := s.ListAllLatestAnalyses(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "newer", all["f-1"].MarkdownReport)

	// equal timestamps fall back to insertion order
	_, err = s.PutAnalysis(ctx, "f-1", &models.AnalysisResult{MarkdownReport: "tie", AnalyzedAt: base.Add(time.Hour)}, 10)
	require.NoError(t, err)
	all, err = s.ListAllLatestAnalyses(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tie", all["f-1"].MarkdownReport)
}

func TestWritesRequireStoredFile(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.PutAnalysis(ctx, "gone-1", &models.AnalysisResult{MarkdownReport: "# orphan"}, 10)
	assert.ErrorIs(t, err, ErrUnknownFile)
	assert.ErrorIs(t, err, ErrIntegrity)
	assert.NotErrorIs(t, err, ErrStoreUnavailable)

	err = s.ReplaceChatHistory(ctx, "gone-1", []models.ChatMessage{{Role: models.RoleUser, Text: "q"}})
	assert.ErrorIs(t, err, ErrUnknownFile)

	all, err := s.ListAllLatestAnalyses(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
	chats, err := s.ListAllChatHistories(ctx)
	require.NoError(t, err)
	assert.Empty(t, chats)
}

func TestEngineCascadesFileDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.PutFile(ctx, testFile("f-1", time.Now())))
	_, err := s.PutAnalysis(ctx, "f-1", &models.AnalysisResult{MarkdownReport: "# f-1"}, 10)
	require.NoError(t, err)
	require.NoError(t, s.ReplaceChatHistory(ctx, "f-1", []models.ChatMessage{{Role: models.RoleUser, Text: "q"}}))

	// bypass DeleteFile so only the foreign keys remove the children
	require.NoError(t, s.gdb.Where("id = ?", "f-1").Delete(&models.File{}).Error)

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.AnalysisCount)
	assert.Zero(t, stats.MessageCount)
}

func TestChatHistoryOrderSurvivesReplace(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var msgs []models.ChatMessage
	for i := 0; i < 12; i++ {
		role := models.RoleUser
		if i%2 == 1 {
			role = models.RoleModel
		}
		msgs = append(msgs, models.ChatMessage{Role: role, Text: fmt.Sprintf("turn %d", i)})
	}
	require.NoError(t, s.PutFile(ctx, testFile("f-1", time.Now())))
	require.NoError(t, s.ReplaceChatHistory(ctx, "f-1", msgs[:4]))
	require.NoError(t, s.ReplaceChatHistory(ctx, "f-1", msgs))

	got, err := s.GetChatHistory(ctx, "f-1")
	require.NoError(t, err)
	assert.Equal(t, msgs, got)

	all, err := s.ListAllChatHistories(ctx)
	require.NoError(t, err)
	assert.Equal(t, msgs, all["f-1"])

	require.NoError(t, s.ReplaceChatHistory(ctx, "f-1", nil))
	got, err = s.GetChatHistory(ctx, "f-1")
	require.NoError(t, err)
	assert.Empty(t, got)

	err = s.ReplaceChatHistory(ctx, "f-1", []models.ChatMessage{{Role: "system", Text: "x"}})
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestReplaceChatHistoryIsAtomic(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	short := []models.ChatMessage{
		{Role: models.RoleUser, Text: "s0"},
		{Role: models.RoleModel, Text: "s1"},
	}
	long := []models.ChatMessage{
		{Role: models.RoleUser, Text: "l0"},
		{Role: models.RoleModel, Text: "l1"},
		{Role: models.RoleUser, Text: "l2"},
		{Role: models.RoleModel, Text: "l3"},
		{Role: models.RoleUser, Text: "l4"},
	}
	require.NoError(t, s.PutFile(ctx, testFile("f-1", time.Now())))
	require.NoError(t, s.ReplaceChatHistory(ctx, "f-1", short))

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(done)
		for i := 0; i < 40; i++ {
			next := long
			if i%2 == 1 {
				next = short
			}
			if err := s.ReplaceChatHistory(ctx, "f-1", next); err != nil {
				t.Errorf("replace: %v", err)
				return
			}
		}
	}()

	for r := 0; r < 3; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				got, err := s.GetChatHistory(ctx, "f-1")
				if err != nil {
					t.Errorf("read: %v", err)
					return
				}
				if !assert.ObjectsAreEqual(short, got) && !assert.ObjectsAreEqual(long, got) {
					t.Errorf("observed partial history: %+v", got)
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestTouchFileAccess(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	uploaded := time.Now().UTC().Add(-time.Hour)
	require.NoError(t, s.PutFile(ctx, testFile("f-1", uploaded)))

	require.NoError(t, s.TouchFileAccess(ctx, "f-1"))
	require.NoError(t, s.TouchFileAccess(ctx, "missing"))

	f, err := s.GetFile(ctx, "f-1")
	require.NoError(t, err)
	assert.True(t, f.LastAccessedAt.After(uploaded))
}

func TestHealthCheckAfterClose(t *testing.T) {
	d, err := db.OpenSQLite(filepath.Join(t.TempDir(), "closed.db"), nil)
	require.NoError(t, err)
	require.NoError(t, d.AutoMigrate())
	s := NewDBStore(d)
	ctx := context.Background()

	require.NoError(t, s.HealthCheck(ctx))
	require.NoError(t, d.Close())
	assert.ErrorIs(t, s.HealthCheck(ctx), ErrStoreUnavailable)
}

func TestUnavailableStore(t *testing.T) {
	ctx := context.Background()
	s := Unavailable(fmt.Errorf("open data/tradelens.db: permission denied"))

	err := s.HealthCheck(ctx)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.Contains(t, err.Error(), "permission denied")

	_, err = s.ListFiles(ctx)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.ErrorIs(t, s.PutFile(ctx, testFile("x", time.Now())), ErrStoreUnavailable)
}
