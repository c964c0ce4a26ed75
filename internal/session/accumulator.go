package session

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/tradelens/backend/internal/services"
)

// HistorySink receives the text of the reply being streamed for one file.
type HistorySink interface {
	// AppendPlaceholder adds an empty model message to the file's history.
	AppendPlaceholder(fileID string)
	// ReplaceLast sets the text of the last message if it has the model
	// role, and reports whether it did.
	ReplaceLast(fileID, text string) bool
}

// Accumulator folds stream fragments into the last message of a history.
type Accumulator struct {
	sink    HistorySink
	fileID  string
	buf     strings.Builder
	started bool
}

func NewAccumulator(sink HistorySink, fileID string) *Accumulator {
	return &Accumulator{sink: sink, fileID: fileID}
}

// Start appends the empty model placeholder. It runs once.
func (a *Accumulator) Start() {
	if a.started {
		return
	}
	a.started = true
	a.sink.AppendPlaceholder(a.fileID)
}

// Started reports whether the placeholder was appended.
func (a *Accumulator) Started() bool {
	return a.started
}

// Add appends one fragment and publishes the running text.
func (a *Accumulator) Add(fragment string) {
	a.Start()
	a.buf.WriteString(fragment)
	a.sink.ReplaceLast(a.fileID, a.buf.String())
}

// Text is everything received so far.
func (a *Accumulator) Text() string {
	return a.buf.String()
}

// Drain reads the stream to the end. A stream that stops with anything other
// than io.EOF is a failed reply.
func (a *Accumulator) Drain(stream services.ChatStream) error {
	defer stream.Close()
	a.Start()
	for {
		frag, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("stream interrupted after %d bytes: %w", a.buf.Len(), err)
		}
		a.Add(frag)
	}
}
