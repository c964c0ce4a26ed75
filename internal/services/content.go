package services

import (
	"encoding/base64"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/tradelens/backend/internal/models"
)

// MaxContentChars bounds the journal text sent to the model.
const MaxContentChars = 120000

// PrepareContent returns the journal as plain text for a prompt. Binary
// payloads are decoded from base64; HTML statements exported by brokers are
// flattened to one tab-separated line per table row.
func PrepareContent(f *models.File) (string, error) {
	if f == nil {
		return "", fmt.Errorf("file is nil")
	}

	text := f.Content
	if f.IsBinary {
		raw, err := base64.StdEncoding.DecodeString(f.Content)
		if err != nil {
			return "", fmt.Errorf("decode %s: %w", f.Name, err)
		}
		if !utf8.Valid(raw) {
			return "", fmt.Errorf("%s is a binary %s file; export it as CSV or text", f.Name, describeMime(f.MimeType))
		}
		text = string(raw)
	}

	if isHTML(f.MimeType, text) {
		flat, err := FlattenHTML(text)
		if err != nil {
			return "", fmt.Errorf("read html statement %s: %w", f.Name, err)
		}
		text = flat
	}

	return truncate(text, MaxContentChars), nil
}

func isHTML(mime, text string) bool {
	if strings.Contains(mime, "html") {
		return true
	}
	head := strings.ToLower(strings.TrimSpace(text))
	if len(head) > 512 {
		head = head[:512]
	}
	return strings.HasPrefix(head, "<!doctype html") || strings.HasPrefix(head, "<html") || strings.HasPrefix(head, "<table")
}

// FlattenHTML keeps the tables of an HTML statement as tab-separated rows
// and falls back to the document text when there are none.
func FlattenHTML(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", err
	}

	var b strings.Builder
	doc.Find("table").Each(func(_ int, table *goquery.Selection) {
		if caption := strings.TrimSpace(table.Find("caption").First().Text()); caption != "" {
			b.WriteString("# " + caption + "\n")
		}
		table.Find("tr").Each(func(_ int, row *goquery.Selection) {
			var cells []string
			row.Find("th, td").Each(func(_ int, cell *goquery.Selection) {
				cells = append(cells, strings.Join(strings.Fields(cell.Text()), " "))
			})
			if len(cells) > 0 {
				b.WriteString(strings.Join(cells, "\t"))
				b.WriteString("\n")
			}
		})
		b.WriteString("\n")
	})

	if b.Len() == 0 {
		doc.Find("script, style").Remove()
		return strings.Join(strings.Fields(doc.Text()), " "), nil
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + fmt.Sprintf("\n\n[... journal truncated, %d of %d characters shown ...]", cut, len(s))
}

func describeMime(mime string) string {
	if mime == "" {
		return "binary"
	}
	return mime
}
