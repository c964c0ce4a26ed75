package cmd

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tradelens/backend/internal/models"
	"github.com/tradelens/backend/internal/session"
	"gopkg.in/yaml.v3"
)

func withOutput(t *testing.T, format string) {
	t.Helper()
	prev := outputFormat
	outputFormat = format
	t.Cleanup(func() { outputFormat = prev })
}

func testState() session.State {
	size := int64(32)
	return session.State{
		Files: []models.File{
			{ID: "may.csv-1714987800000", Name: "may.csv", SizeBytes: &size, UploadedAt: time.Date(2024, 5, 6, 9, 30, 0, 0, time.UTC)},
			{ID: "april.csv-1712000000000", Name: "april.csv", UploadedAt: time.Date(2024, 4, 1, 19, 33, 20, 0, time.UTC)},
		},
		Analyses: map[string]*models.AnalysisResult{
			"may.csv-1714987800000": {MarkdownReport: "# May"},
		},
		Chats:          map[string][]models.ChatMessage{},
		SelectedFileID: "may.csv-1714987800000",
	}
}

func TestResolveFileID(t *testing.T) {
	files := testState().Files

	id, err := resolveFileID(files, "may.csv-1714987800000")
	require.NoError(t, err)
	assert.Equal(t, "may.csv-1714987800000", id)

	id, err = resolveFileID(files, "apr")
	require.NoError(t, err)
	assert.Equal(t, "april.csv-1712000000000", id)

	_, err = resolveFileID(files, "zzz")
	assert.ErrorContains(t, err, "no journal")

	_, err = resolveFileID(append(files, models.File{ID: "may.csv-1"}), "may")
	assert.ErrorContains(t, err, "ambiguous")
}

func TestPrintFilesText(t *testing.T) {
	withOutput(t, "text")
	var buf bytes.Buffer
	require.NoError(t, printFiles(&buf, testState()))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[1], "*"), "selected file is marked")
	assert.Contains(t, lines[1], "yes")
	assert.Contains(t, lines[2], "no")
}

func TestPrintFilesYAML(t *testing.T) {
	withOutput(t, "yaml")
	var buf bytes.Buffer
	require.NoError(t, printFiles(&buf, testState()))

	var got []fileView
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &got))
	require.Len(t, got, 2)
	assert.True(t, got[0].Analyzed)
	assert.True(t, got[0].Selected)
	assert.False(t, got[1].Analyzed)
	assert.NotContains(t, buf.String(), "content", "file content is never printed")
}

func TestPrintFilesJSON(t *testing.T) {
	withOutput(t, "json")
	var buf bytes.Buffer
	require.NoError(t, printFiles(&buf, testState()))
	assert.Contains(t, buf.String(), `"id": "may.csv-1714987800000"`)
	assert.Contains(t, buf.String(), `"sizeBytes": 32`)
}

func TestValidateOutputFormat(t *testing.T) {
	assert.NoError(t, validateOutputFormat("YAML"))
	assert.Error(t, validateOutputFormat("xml"))
}

func TestStreamPrinterWritesDeltas(t *testing.T) {
	var buf bytes.Buffer
	p := &streamPrinter{w: &buf}
	p.reset("f-1")

	for _, text := range []string{"", "Hel", "Hello", "Hello, world"} {
		p.onChange(session.State{
			IsChatting: true,
			Chats: map[string][]models.ChatMessage{"f-1": {
				{Role: models.RoleUser, Text: "q"},
				{Role: models.RoleModel, Text: text},
			}},
		})
	}
	p.onChange(session.State{Chats: map[string][]models.ChatMessage{"f-1": {{Role: models.RoleModel, Text: "ignored once idle"}}}})

	assert.Equal(t, "Hello, world", buf.String())
}

func TestHumanBytes(t *testing.T) {
	assert.Equal(t, "512 B", humanBytes(512))
	assert.Equal(t, "1.5 KiB", humanBytes(1536))
	assert.Equal(t, "2.0 MiB", humanBytes(2*1024*1024))
}
