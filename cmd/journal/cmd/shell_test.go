package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tradelens/backend/internal/models"
	"github.com/tradelens/backend/internal/services"
)

func TestShellCallsClear(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(services.OllamaGenerateResponse{Response: `{"markdownReport":"# ok"}`, Done: true})
	}))
	defer srv.Close()

	ls := services.NewLLMService(srv.URL, "test-model", 5)
	_, err := ls.Analyze(context.Background(), &models.File{ID: "may.csv-1", Name: "may.csv", Content: "pnl\n10\n"})
	require.NoError(t, err)

	var out bytes.Buffer
	sh := &shell{app: &app{provider: ls}, out: &out}

	require.NoError(t, sh.calls(""))
	assert.Contains(t, out.String(), "may.csv-1")

	out.Reset()
	require.NoError(t, sh.calls("clear"))
	assert.Empty(t, ls.GetAPICalls())

	out.Reset()
	require.NoError(t, sh.calls(""))
	assert.Contains(t, out.String(), "no model calls yet")

	assert.Error(t, sh.calls("bogus"))
}
