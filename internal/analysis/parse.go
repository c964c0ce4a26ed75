// Package analysis turns the untrusted text returned by the analyze model
// into an AnalysisResult. Parsing never fails outright: an unreadable
// payload becomes a placeholder report, and a malformed field is dropped
// without discarding the rest.
package analysis

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tradelens/backend/internal/models"
)

var (
	ErrNotJSON       = errors.New("response is not a JSON object")
	ErrMissingReport = errors.New("response has no markdownReport")
)

// Outcome is the parsed result plus what, if anything, was rejected.
type Outcome struct {
	Result *models.AnalysisResult

	// Unparsed is set when the whole payload was rejected and Result holds
	// the placeholder report.
	Unparsed error
	// ChartDropped is set when chartData was present but malformed.
	ChartDropped error
	// QuestionsDropped is set when suggestedQuestions was present but not a
	// list of strings.
	QuestionsDropped error
}

// Parse validates raw model output. Result is never nil.
func Parse(raw string) Outcome {
	obj, err := extractObject(raw)
	if err != nil {
		return Outcome{Result: Placeholder(raw), Unparsed: err}
	}

	var report string
	if rawReport, ok := obj["markdownReport"]; !ok || json.Unmarshal(rawReport, &report) != nil || strings.TrimSpace(report) == "" {
		return Outcome{Result: Placeholder(raw), Unparsed: ErrMissingReport}
	}

	out := Outcome{Result: &models.AnalysisResult{
		MarkdownReport:     report,
		SuggestedQuestions: []string{},
	}}

	if rawChart, ok := obj["chartData"]; ok {
		chart, err := ParseChartData(rawChart)
		if err != nil {
			out.ChartDropped = err
		} else {
			out.Result.ChartData = chart
		}
	}

	if rawQs, ok := obj["suggestedQuestions"]; ok {
		qs, err := parseQuestions(rawQs)
		if err != nil {
			out.QuestionsDropped = err
		} else {
			out.Result.SuggestedQuestions = qs
		}
	}

	return out
}

// extractObject strips Markdown fences and surrounding prose and decodes the
// first top-level JSON object.
func extractObject(raw string) (map[string]json.RawMessage, error) {
	clean := stripFences(strings.TrimSpace(raw))

	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(clean), &obj); err == nil && obj != nil {
		return obj, nil
	}

	start := strings.Index(clean, "{")
	end := strings.LastIndex(clean, "}")
	if start < 0 || end <= start {
		return nil, ErrNotJSON
	}
	if err := json.Unmarshal([]byte(clean[start:end+1]), &obj); err != nil || obj == nil {
		return nil, fmt.Errorf("%w: %v", ErrNotJSON, err)
	}
	return obj, nil
}

func stripFences(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		// drop the info string, e.g. ```json
		s = s[nl+1:]
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// ParseChartData accepts null (no charts) or an object carrying all four
// series as arrays. Anything else is an error.
func ParseChartData(raw json.RawMessage) (*models.ChartData, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil || fields == nil {
		return nil, fmt.Errorf("chartData is not an object")
	}
	for _, key := range models.ChartSeriesKeys {
		v, ok := fields[key]
		if !ok {
			return nil, fmt.Errorf("chartData is missing %s", key)
		}
		if v = bytes.TrimSpace(v); len(v) == 0 || v[0] != '[' {
			return nil, fmt.Errorf("chartData.%s is not an array", key)
		}
	}

	var cd models.ChartData
	if err := json.Unmarshal(trimmed, &cd); err != nil {
		return nil, fmt.Errorf("chartData series are malformed: %w", err)
	}
	return cd.Normalize(), nil
}

// parseQuestions keeps the non-blank strings of a JSON array.
func parseQuestions(raw json.RawMessage) ([]string, error) {
	trimmed := bytes.TrimSpace(raw)
	if bytes.Equal(trimmed, []byte("null")) {
		return []string{}, nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return nil, fmt.Errorf("suggestedQuestions is not an array")
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		var q string
		if json.Unmarshal(item, &q) != nil {
			continue
		}
		if q = strings.TrimSpace(q); q != "" {
			out = append(out, q)
		}
	}
	return out, nil
}

// PlaceholderHeading opens every report synthesized from an unreadable
// response.
const PlaceholderHeading = "## Analysis could not be parsed"

// Placeholder builds the report shown when the model response could not be
// read. The raw response is quoted in a fence longer than any backtick run
// it contains.
func Placeholder(raw string) *models.AnalysisResult {
	fence := strings.Repeat("`", max(3, longestRun(raw, '`')+1))

	var b strings.Builder
	b.WriteString(PlaceholderHeading)
	b.WriteString("\n\nThe analysis service returned a response that was not in the expected format. ")
	b.WriteString("The raw response is shown below; running the analysis again usually fixes this.\n\n")
	b.WriteString(fence + "text\n")
	b.WriteString(raw)
	if !strings.HasSuffix(raw, "\n") {
		b.WriteString("\n")
	}
	b.WriteString(fence + "\n")

	return &models.AnalysisResult{
		MarkdownReport:     b.String(),
		ChartData:          nil,
		SuggestedQuestions: []string{},
	}
}

func longestRun(s string, c byte) int {
	best, cur := 0, 0
	for i := 0; i < len(s); i++ {
		if s[i] == c {
			cur++
			if cur > best {
				best = cur
			}
		} else {
			cur = 0
		}
	}
	return best
}
