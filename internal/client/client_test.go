package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tradelens/backend/internal/db"
	"github.com/tradelens/backend/internal/models"
	"github.com/tradelens/backend/internal/routes"
	"github.com/tradelens/backend/internal/store"
	"github.com/tradelens/backend/internal/transport"
)

func fastTransport() *transport.Transport {
	return transport.New(transport.Config{Timeout: 200 * time.Millisecond, Attempts: 3, BaseDelay: 5 * time.Millisecond})
}

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	d, err := db.OpenSQLite(filepath.Join(t.TempDir(), "client.db"), nil)
	require.NoError(t, err)
	require.NoError(t, d.AutoMigrate())
	t.Cleanup(func() { d.Close() })

	s := store.NewDBStore(d)
	srv := httptest.NewServer(routes.NewRouter(s, routes.Options{Backuper: s, BackupDir: s.BackupDir}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClientRoundTrip(t *testing.T) {
	srv := newServer(t)
	c := New(srv.URL, fastTransport())
	ctx := context.Background()

	require.NoError(t, c.HealthCheck(ctx))

	f := &models.File{ID: "a-1", Name: "a.csv", Content: "...", UploadedAt: time.Now().UTC()}
	require.NoError(t, c.PutFile(ctx, f))
	assert.ErrorIs(t, c.PutFile(ctx, f), store.ErrDuplicateKey)

	files, err := c.ListFiles(ctx)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "a-1", files[0].ID)

	got, err := c.GetFile(ctx, "a-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	missing, err := c.GetFile(ctx, "zzz")
	require.NoError(t, err)
	assert.Nil(t, missing)

	result := &models.AnalysisResult{
		MarkdownReport: "# Summary",
		ChartData: &models.ChartData{
			EquityCurve: []models.EquityPoint{{Label: "T1", Equity: decimal.NewFromInt(250)}},
		},
		SuggestedQuestions: []string{"Which instrument performed best?"},
	}
	id, err := c.PutAnalysis(ctx, "a-1", result, 1500)
	require.NoError(t, err)
	assert.NotZero(t, id)

	latest, err := c.GetLatestAnalysis(ctx, "a-1")
	require.NoError(t, err)
	require.NotNil(t, latest)
	require.NotNil(t, latest.ChartData)
	assert.True(t, latest.ChartData.EquityCurve[0].Equity.Equal(decimal.NewFromInt(250)))
	assert.NotNil(t, latest.ChartData.HourlyPnL)

	none, err := c.GetLatestAnalysis(ctx, "zzz")
	require.NoError(t, err)
	assert.Nil(t, none)

	all, err := c.ListAllLatestAnalyses(ctx)
	require.NoError(t, err)
	assert.Contains(t, all, "a-1")

	history := []models.ChatMessage{
		{Role: models.RoleUser, Text: "What was my best hour?"},
		{Role: models.RoleModel, Text: "09:00 was your best hour."},
	}
	require.NoError(t, c.ReplaceChatHistory(ctx, "a-1", history))
	gotHistory, err := c.GetChatHistory(ctx, "a-1")
	require.NoError(t, err)
	assert.Equal(t, history, gotHistory)

	chats, err := c.ListAllChatHistories(ctx)
	require.NoError(t, err)
	assert.Equal(t, history, chats["a-1"])

	require.NoError(t, c.TouchFileAccess(ctx, "a-1"))

	st, err := c.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), st.FileCount)
	assert.Equal(t, int64(2), st.MessageCount)

	require.NoError(t, c.DeleteFile(ctx, "a-1"))
	require.NoError(t, c.DeleteFile(ctx, "a-1"))
	gotHistory, err = c.GetChatHistory(ctx, "a-1")
	require.NoError(t, err)
	assert.Empty(t, gotHistory)

	_, err = c.PutAnalysis(ctx, "a-1", result, 10)
	assert.ErrorIs(t, err, store.ErrUnknownFile)
	assert.NotErrorIs(t, err, store.ErrStoreUnavailable)
	assert.ErrorIs(t, c.ReplaceChatHistory(ctx, "a-1", history), store.ErrUnknownFile)
}

func TestClientRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":"Failed to fetch files"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id":"x-1","name":"x.csv","content":"..."}]`))
	}))
	defer srv.Close()

	files, err := New(srv.URL, fastTransport()).ListFiles(context.Background())
	require.NoError(t, err)
	assert.Len(t, files, 1)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestClientUnreachableStore(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	err := New(url, fastTransport()).HealthCheck(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrStoreUnavailable)
	assert.ErrorIs(t, err, transport.ErrConnectionFailed)
}

func TestClientTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	tr := transport.New(transport.Config{Timeout: 20 * time.Millisecond, Attempts: 2, BaseDelay: time.Millisecond})
	_, err := New(srv.URL, tr).Stats(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, transport.ErrTimeout)
	assert.ErrorIs(t, err, store.ErrStoreUnavailable)
}

func TestClientRejectsInvalidFileLocally(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer srv.Close()

	err := New(srv.URL, fastTransport()).PutFile(context.Background(), &models.File{ID: "x", Name: "x.csv"})
	assert.ErrorIs(t, err, store.ErrInvalid)
	assert.Zero(t, atomic.LoadInt32(&calls))
}
