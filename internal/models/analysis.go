package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

func init() {
	// Chart values travel as JSON numbers, not quoted strings.
	decimal.MarshalJSONWithoutQuotes = true
}

// Chart series keys as they appear in analyze payloads and stored JSON.
const (
	SeriesHourlyPnL             = "hourlyPnl"
	SeriesWeekdayPnL            = "weekdayPnl"
	SeriesEquityCurve           = "equityCurve"
	SeriesInstrumentPerformance = "instrumentPerformance"
)

// ChartSeriesKeys lists the four series every ChartData must carry.
var ChartSeriesKeys = []string{
	SeriesHourlyPnL,
	SeriesWeekdayPnL,
	SeriesEquityCurve,
	SeriesInstrumentPerformance,
}

type HourlyPnL struct {
	Hour   int             `json:"hour"`
	PnL    decimal.Decimal `json:"pnl"`
	Trades int             `json:"trades,omitempty"`
}

type WeekdayPnL struct {
	Day    string          `json:"day"`
	PnL    decimal.Decimal `json:"pnl"`
	Trades int             `json:"trades,omitempty"`
}

type EquityPoint struct {
	Label  string          `json:"label"`
	Equity decimal.Decimal `json:"equity"`
}

type InstrumentPerformance struct {
	Instrument string          `json:"instrument"`
	PnL        decimal.Decimal `json:"pnl"`
	Trades     int             `json:"trades,omitempty"`
	WinRate    float64         `json:"winRate,omitempty"`
}

// ChartData holds the four derived series of an analysis. A value of this type
// is always well-formed; a malformed payload is represented by a nil *ChartData.
type ChartData struct {
	HourlyPnL             []HourlyPnL             `json:"hourlyPnl"`
	WeekdayPnL            []WeekdayPnL            `json:"weekdayPnl"`
	EquityCurve           []EquityPoint           `json:"equityCurve"`
	InstrumentPerformance []InstrumentPerformance `json:"instrumentPerformance"`
}

// Normalize replaces nil series with empty ones so they serialize as [].
func (c *ChartData) Normalize() *ChartData {
	if c == nil {
		return nil
	}
	if c.HourlyPnL == nil {
		c.HourlyPnL = []HourlyPnL{}
	}
	if c.WeekdayPnL == nil {
		c.WeekdayPnL = []WeekdayPnL{}
	}
	if c.EquityCurve == nil {
		c.EquityCurve = []EquityPoint{}
	}
	if c.InstrumentPerformance == nil {
		c.InstrumentPerformance = []InstrumentPerformance{}
	}
	return c
}

// AnalysisResult is the AI-generated report for one File.
type AnalysisResult struct {
	FileID             string     `json:"fileId"`
	MarkdownReport     string     `json:"markdownReport"`
	ChartData          *ChartData `json:"chartData"`
	SuggestedQuestions []string   `json:"suggestedQuestions"`
	AnalyzedAt         time.Time  `json:"analyzedAt"`
	ProcessingTimeMs   int64      `json:"processingTimeMs"`
}

// Clone returns a deep copy so callers can hand results across goroutines.
func (r *AnalysisResult) Clone() *AnalysisResult {
	if r == nil {
		return nil
	}
	out := *r
	out.SuggestedQuestions = append([]string{}, r.SuggestedQuestions...)
	if r.ChartData != nil {
		cd := ChartData{
			HourlyPnL:             append([]HourlyPnL{}, r.ChartData.HourlyPnL...),
			WeekdayPnL:            append([]WeekdayPnL{}, r.ChartData.WeekdayPnL...),
			EquityCurve:           append([]EquityPoint{}, r.ChartData.EquityCurve...),
			InstrumentPerformance: append([]InstrumentPerformance{}, r.ChartData.InstrumentPerformance...),
		}
		out.ChartData = &cd
	}
	return &out
}

// AnalysisRecord is one stored analysis row. Rows are insert-only; a file's
// latest analysis is the row with the newest AnalyzedAt, ties going to the
// highest ID.
type AnalysisRecord struct {
	ID                 uint           `json:"id" gorm:"primaryKey"`
	FileID             string         `json:"fileId" gorm:"size:191;not null;index"`
	File               *File          `json:"-" gorm:"foreignKey:FileID;references:ID;constraint:OnDelete:CASCADE"`
	MarkdownReport     string         `json:"markdownReport" gorm:"not null"`
	ChartData          datatypes.JSON `json:"chartData"`
	SuggestedQuestions datatypes.JSON `json:"suggestedQuestions"`
	ProcessingTimeMs   int64          `json:"processingTimeMs"`
	AnalyzedAt         time.Time      `json:"analyzedAt"`
	CreatedAt          time.Time      `json:"createdAt"`
}

func (AnalysisRecord) TableName() string {
	return "analysis_results"
}

// NewAnalysisRecord converts a result into its stored form.
func NewAnalysisRecord(fileID string, r *AnalysisResult, processingTimeMs int64) (*AnalysisRecord, error) {
	if r == nil {
		return nil, fmt.Errorf("nil analysis result")
	}
	rec := &AnalysisRecord{
		FileID:           fileID,
		MarkdownReport:   r.MarkdownReport,
		ProcessingTimeMs: processingTimeMs,
		AnalyzedAt:       r.AnalyzedAt.UTC(),
	}
	if r.AnalyzedAt.IsZero() {
		rec.AnalyzedAt = time.Now().UTC()
	}
	if r.ChartData != nil {
		b, err := json.Marshal(r.ChartData.Normalize())
		if err != nil {
			return nil, fmt.Errorf("marshal chart data: %w", err)
		}
		rec.ChartData = datatypes.JSON(b)
	}
	questions := r.SuggestedQuestions
	if questions == nil {
		questions = []string{}
	}
	b, err := json.Marshal(questions)
	if err != nil {
		return nil, fmt.Errorf("marshal suggested questions: %w", err)
	}
	rec.SuggestedQuestions = datatypes.JSON(b)
	return rec, nil
}

// Result converts a stored row back into an AnalysisResult. Columns degrade
// independently: unreadable chart JSON yields nil chart data, unreadable
// questions yield an empty list.
func (rec *AnalysisRecord) Result() *AnalysisResult {
	out := &AnalysisResult{
		FileID:             rec.FileID,
		MarkdownReport:     rec.MarkdownReport,
		SuggestedQuestions: []string{},
		AnalyzedAt:         rec.AnalyzedAt,
		ProcessingTimeMs:   rec.ProcessingTimeMs,
	}
	if len(rec.ChartData) > 0 && string(rec.ChartData) != "null" {
		var cd ChartData
		if err := json.Unmarshal(rec.ChartData, &cd); err == nil {
			out.ChartData = cd.Normalize()
		}
	}
	if len(rec.SuggestedQuestions) > 0 {
		var qs []string
		if err := json.Unmarshal(rec.SuggestedQuestions, &qs); err == nil && qs != nil {
			out.SuggestedQuestions = qs
		}
	}
	return out
}
