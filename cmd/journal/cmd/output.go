package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/tradelens/backend/internal/models"
	"github.com/tradelens/backend/internal/session"
	"gopkg.in/yaml.v3"
)

func validateOutputFormat(f string) error {
	switch strings.ToLower(f) {
	case "text", "json", "yaml":
		return nil
	default:
		return fmt.Errorf("unknown output format %q (want text, json or yaml)", f)
	}
}

// printValue writes v as JSON or YAML, or calls text for the text format.
func printValue(w io.Writer, v interface{}, text func(w io.Writer)) error {
	switch strings.ToLower(outputFormat) {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		text(w)
		return nil
	}
}

type fileView struct {
	ID         string    `json:"id" yaml:"id"`
	Name       string    `json:"name" yaml:"name"`
	MimeType   string    `json:"mimeType" yaml:"mimeType"`
	SizeBytes  *int64    `json:"sizeBytes,omitempty" yaml:"sizeBytes,omitempty"`
	UploadedAt time.Time `json:"uploadedAt" yaml:"uploadedAt"`
	Analyzed   bool      `json:"analyzed" yaml:"analyzed"`
	Selected   bool      `json:"selected,omitempty" yaml:"selected,omitempty"`
}

func fileViews(st session.State) []fileView {
	out := make([]fileView, 0, len(st.Files))
	for _, f := range st.Files {
		out = append(out, fileView{
			ID:         f.ID,
			Name:       f.Name,
			MimeType:   f.MimeType,
			SizeBytes:  f.SizeBytes,
			UploadedAt: f.UploadedAt,
			Analyzed:   st.Analyses[f.ID] != nil,
			Selected:   f.ID == st.SelectedFileID,
		})
	}
	return out
}

func printFiles(w io.Writer, st session.State) error {
	views := fileViews(st)
	return printValue(w, views, func(w io.Writer) {
		if len(views) == 0 {
			fmt.Fprintln(w, "No journals yet. Add one with: journal upload <path>")
			return
		}
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "\tID\tNAME\tUPLOADED\tANALYZED")
		for _, v := range views {
			marker := ""
			if v.Selected {
				marker = "*"
			}
			analyzed := "no"
			if v.Analyzed {
				analyzed = "yes"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", marker, v.ID, v.Name, v.UploadedAt.Local().Format("2006-01-02 15:04"), analyzed)
		}
		tw.Flush()
	})
}

type reportView struct {
	FileID             string            `json:"fileId" yaml:"fileId"`
	AnalyzedAt         time.Time         `json:"analyzedAt" yaml:"analyzedAt"`
	ProcessingTimeMs   int64             `json:"processingTimeMs" yaml:"processingTimeMs"`
	MarkdownReport     string            `json:"markdownReport" yaml:"markdownReport"`
	ChartData          *models.ChartData `json:"chartData" yaml:"chartData"`
	SuggestedQuestions []string          `json:"suggestedQuestions" yaml:"suggestedQuestions"`
}

func printReport(w io.Writer, r *models.AnalysisResult) error {
	view := reportView{
		FileID:             r.FileID,
		AnalyzedAt:         r.AnalyzedAt,
		ProcessingTimeMs:   r.ProcessingTimeMs,
		MarkdownReport:     r.MarkdownReport,
		ChartData:          r.ChartData,
		SuggestedQuestions: r.SuggestedQuestions,
	}
	return printValue(w, view, func(w io.Writer) {
		fmt.Fprintln(w, r.MarkdownReport)
		if r.ChartData != nil {
			fmt.Fprintln(w)
			printChartSummary(w, r.ChartData)
		}
		if len(r.SuggestedQuestions) > 0 {
			fmt.Fprintln(w, "\nYou could ask:")
			for _, q := range r.SuggestedQuestions {
				fmt.Fprintf(w, "  - %s\n", q)
			}
		}
		fmt.Fprintf(w, "\n(analyzed in %s)\n", time.Duration(r.ProcessingTimeMs)*time.Millisecond)
	})
}

func printChartSummary(w io.Writer, c *models.ChartData) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if len(c.HourlyPnL) > 0 {
		fmt.Fprintln(tw, "HOUR\tPNL")
		for _, h := range c.HourlyPnL {
			fmt.Fprintf(tw, "%02d:00\t%s\n", h.Hour, h.PnL.StringFixed(2))
		}
		fmt.Fprintln(tw)
	}
	if len(c.InstrumentPerformance) > 0 {
		fmt.Fprintln(tw, "INSTRUMENT\tPNL\tTRADES")
		for _, p := range c.InstrumentPerformance {
			fmt.Fprintf(tw, "%s\t%s\t%d\n", p.Instrument, p.PnL.StringFixed(2), p.Trades)
		}
	}
	tw.Flush()
}

// streamPrinter echoes the reply being streamed for one file as the session
// publishes it.
type streamPrinter struct {
	mu      sync.Mutex
	w       io.Writer
	fileID  string
	printed int
}

func (p *streamPrinter) reset(fileID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fileID = fileID
	p.printed = 0
}

func (p *streamPrinter) onChange(st session.State) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fileID == "" || !st.IsChatting {
		return
	}
	msgs := st.Chats[p.fileID]
	n := len(msgs)
	if n == 0 || msgs[n-1].Role != models.RoleModel {
		return
	}
	if text := msgs[n-1].Text; len(text) > p.printed {
		fmt.Fprint(p.w, text[p.printed:])
		p.printed = len(text)
	}
}

// resolveFileID accepts a full id or a unique prefix of one.
func resolveFileID(files []models.File, id string) (string, error) {
	var matches []string
	for _, f := range files {
		if f.ID == id {
			return id, nil
		}
		if strings.HasPrefix(f.ID, id) {
			matches = append(matches, f.ID)
		}
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("no journal with id %q", id)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("id %q is ambiguous: %s", id, strings.Join(matches, ", "))
	}
}
