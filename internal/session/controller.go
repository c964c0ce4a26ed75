// Package session holds the in-memory state of one analyzer session and keeps
// it in step with whichever durable tier is active: the persistent store when
// it answered the startup health check, the fallback cache otherwise.
package session

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/tradelens/backend/internal/analysis"
	"github.com/tradelens/backend/internal/cache"
	"github.com/tradelens/backend/internal/logger"
	"github.com/tradelens/backend/internal/models"
	"github.com/tradelens/backend/internal/services"
	"github.com/tradelens/backend/internal/store"
)

var (
	ErrNotStarted     = errors.New("session not started")
	ErrValidation     = errors.New("invalid input")
	ErrBusy           = errors.New("operation already in progress")
	ErrNoSelection    = errors.New("no file selected")
	ErrUnknownFile    = errors.New("unknown file")
	ErrNotAnalyzed    = errors.New("file has not been analyzed")
	ErrAnalysisFailed = errors.New("analysis failed")
	ErrChatFailed     = errors.New("chat failed")
)

// FallbackCache is the local tier used while the store is unreachable.
type FallbackCache interface {
	Load() (*cache.Snapshot, error)
	SaveFiles(files []models.File) error
	SaveAnalyses(analyses map[string]*models.AnalysisResult) error
	SaveChats(chats map[string][]models.ChatMessage) error
	Save(s *cache.Snapshot) error
	Clear() error
}

type Options struct {
	Store    store.Store
	Cache    FallbackCache // optional
	Analyzer services.Analyzer
	Chatter  services.Chatter
	// OnChange receives a copy of the state after every change, in order.
	// It must not call back into mutating controller methods.
	OnChange func(State)
	Now      func() time.Time
}

// Controller owns the session state. Operations may be called from any
// goroutine; no lock is held while the store, cache or model is called.
type Controller struct {
	store    store.Store
	cache    FallbackCache
	analyzer services.Analyzer
	chatter  services.Chatter
	onChange func(State)
	now      func() time.Time

	startOnce sync.Once

	mu sync.Mutex
	st State
	// reconnecting keeps Analyze and SendChat from starting while the
	// collections are being swapped.
	reconnecting bool
	// chatFileID is the file whose reply is streaming, if any.
	chatFileID string

	// tierMu keeps durable writes from interleaving with a reconnect.
	tierMu   sync.RWMutex
	notifyMu sync.Mutex
}

func New(opts Options) *Controller {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Controller{
		store:    opts.Store,
		cache:    opts.Cache,
		analyzer: opts.Analyzer,
		chatter:  opts.Chatter,
		onChange: opts.OnChange,
		now:      now,
		st: State{
			Analyses: map[string]*models.AnalysisResult{},
			Chats:    map[string][]models.ChatMessage{},
		},
	}
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.st.clone()
}

func (c *Controller) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.st.Mode
}

func (c *Controller) notify() {
	if c.onChange == nil {
		return
	}
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()
	c.onChange(c.Snapshot())
}

func (c *Controller) update(fn func(st *State)) {
	c.mu.Lock()
	fn(&c.st)
	c.mu.Unlock()
	c.notify()
}

func (c *Controller) fail(action string, err error) {
	c.update(func(st *State) {
		st.LastError = fmt.Sprintf("%s: %v", action, err)
	})
}

func (c *Controller) writeCache(what string, fn func(FallbackCache) error) {
	if c.cache == nil {
		return
	}
	if err := fn(c.cache); err != nil {
		logger.WithError(err, "session").WithField("key", what).Error("Fallback cache write failed")
	}
}

// Start picks the durable tier and loads the session from it. It runs once;
// later calls return the mode chosen by the first.
func (c *Controller) Start(ctx context.Context) Mode {
	c.startOnce.Do(func() {
		if err := c.store.HealthCheck(ctx); err != nil {
			logger.WithError(err, "session").Warn("Store unreachable, using fallback cache")
			c.enterDegraded()
			return
		}
		if err := c.connect(ctx, false); err != nil {
			logger.WithError(err, "session").Warn("Initial load failed, using fallback cache")
			c.enterDegraded()
		}
	})
	return c.Mode()
}

// Reconnect retries the store while degraded. On success everything written
// to the cache meanwhile is replayed into the store and the cache is cleared.
// It returns ErrBusy while an analysis or chat reply is running.
func (c *Controller) Reconnect(ctx context.Context) error {
	c.tierMu.Lock()
	defer c.tierMu.Unlock()

	c.mu.Lock()
	mode, busy := c.st.Mode, c.st.IsAnalyzing || c.st.IsChatting
	if mode == ModeDegraded && !busy {
		c.reconnecting = true
	}
	c.mu.Unlock()
	if mode != ModeDegraded {
		return nil
	}
	if busy {
		return ErrBusy
	}
	defer func() {
		c.mu.Lock()
		c.reconnecting = false
		c.mu.Unlock()
	}()

	if err := c.store.HealthCheck(ctx); err != nil {
		c.fail("Store still unreachable", err)
		return err
	}
	if err := c.connect(ctx, true); err != nil {
		c.fail("Reconnect failed", err)
		return err
	}
	logger.Info("Reconnected to store", map[string]interface{}{"component": "session"})
	return nil
}

// connect migrates the cache into the store when it should, then loads the
// store. With merge unset the cache is only migrated into an empty store.
func (c *Controller) connect(ctx context.Context, merge bool) error {
	existing, err := c.store.ListFiles(ctx)
	if err != nil {
		return err
	}

	if c.cache != nil {
		snap, err := c.cache.Load()
		switch {
		case err != nil:
			logger.WithError(err, "session").Warn("Could not read fallback cache, skipping migration")
		case !snap.Empty() && (merge || len(existing) == 0):
			if err := c.migrate(ctx, snap); err != nil {
				return err
			}
			if err := c.cache.Clear(); err != nil {
				logger.WithError(err, "session").Warn("Could not clear fallback cache after migration")
			}
		}
	}

	files, analyses, chats, err := c.loadStore(ctx)
	if err != nil {
		return err
	}
	c.update(func(st *State) {
		st.Mode = ModeConnected
		st.Files = files
		st.Analyses = analyses
		st.Chats = chats
		st.LastError = ""
		dropStaleSelection(st)
	})
	return nil
}

// migrate copies a cache snapshot into the store. Rejected items are skipped;
// losing the store aborts the migration.
func (c *Controller) migrate(ctx context.Context, snap *cache.Snapshot) error {
	log := logger.WithContext(map[string]interface{}{"component": "session", "op": "migrate"})
	var moved, skipped int
	tolerate := func(kind, id string, err error) error {
		if errors.Is(err, store.ErrStoreUnavailable) {
			return err
		}
		skipped++
		log.WithError(err).WithFields(map[string]interface{}{"kind": kind, "file_id": id}).Warn("Skipping cached item")
		return nil
	}

	for i := range snap.Files {
		f := snap.Files[i]
		if err := c.store.PutFile(ctx, &f); err != nil {
			if err := tolerate("file", f.ID, err); err != nil {
				return err
			}
			continue
		}
		moved++
	}
	for id, r := range snap.Analyses {
		if _, err := c.store.PutAnalysis(ctx, id, r, r.ProcessingTimeMs); err != nil {
			if err := tolerate("analysis", id, err); err != nil {
				return err
			}
			continue
		}
		moved++
	}
	for id, msgs := range snap.Chats {
		if len(msgs) == 0 {
			continue
		}
		if err := c.store.ReplaceChatHistory(ctx, id, msgs); err != nil {
			if err := tolerate("chat", id, err); err != nil {
				return err
			}
			continue
		}
		moved++
	}

	log.WithFields(map[string]interface{}{"moved": moved, "skipped": skipped}).Info("Migrated fallback cache into store")
	return nil
}

func (c *Controller) loadStore(ctx context.Context) ([]models.File, map[string]*models.AnalysisResult, map[string][]models.ChatMessage, error) {
	files, err := c.store.ListFiles(ctx)
	if err != nil {
		return nil, nil, nil, err
	}
	analyses, err := c.store.ListAllLatestAnalyses(ctx)
	if err != nil {
		return nil, nil, nil, err
	}
	chats, err := c.store.ListAllChatHistories(ctx)
	if err != nil {
		return nil, nil, nil, err
	}
	if files == nil {
		files = []models.File{}
	}
	if analyses == nil {
		analyses = map[string]*models.AnalysisResult{}
	}
	if chats == nil {
		chats = map[string][]models.ChatMessage{}
	}
	return files, analyses, chats, nil
}

func (c *Controller) enterDegraded() {
	snap := &cache.Snapshot{
		Files:    []models.File{},
		Analyses: map[string]*models.AnalysisResult{},
		Chats:    map[string][]models.ChatMessage{},
	}
	if c.cache != nil {
		loaded, err := c.cache.Load()
		if err != nil {
			logger.WithError(err, "session").Error("Could not read fallback cache, starting empty")
		} else {
			snap = loaded
		}
	}
	c.update(func(st *State) {
		st.Mode = ModeDegraded
		st.Files = snap.Files
		st.Analyses = snap.Analyses
		st.Chats = snap.Chats
		dropStaleSelection(st)
	})
}

// Upload stores a new file and selects it.
func (c *Controller) Upload(ctx context.Context, f *models.File) error {
	if f == nil {
		return ErrValidation
	}
	if err := f.Validate(); err != nil {
		err = fmt.Errorf("%w: %v", ErrValidation, err)
		c.fail("Upload failed", err)
		return err
	}
	file := *f
	if file.UploadedAt.IsZero() {
		file.UploadedAt = c.now()
	}
	if file.LastAccessedAt.IsZero() {
		file.LastAccessedAt = file.UploadedAt
	}

	c.tierMu.RLock()
	defer c.tierMu.RUnlock()

	switch c.Mode() {
	case ModeConnected:
		if err := c.store.PutFile(ctx, &file); err != nil {
			c.fail("Upload failed", err)
			return err
		}
		files, err := c.store.ListFiles(ctx)
		c.update(func(st *State) {
			if err != nil {
				st.Files = insertFile(st.Files, file)
				st.LastError = fmt.Sprintf("Could not refresh files: %v", err)
			} else {
				st.Files = files
				st.LastError = ""
			}
			st.SelectedFileID = file.ID
		})

	case ModeDegraded:
		var files []models.File
		c.mu.Lock()
		dup := c.st.file(file.ID) != nil
		if !dup {
			c.st.Files = insertFile(c.st.Files, file)
			c.st.SelectedFileID = file.ID
			c.st.LastError = ""
			files = append([]models.File(nil), c.st.Files...)
		}
		c.mu.Unlock()
		if dup {
			err := fmt.Errorf("%w: file %s", store.ErrDuplicateKey, file.ID)
			c.fail("Upload failed", err)
			return err
		}
		c.notify()
		c.writeCache("files", func(fc FallbackCache) error { return fc.SaveFiles(files) })

	default:
		return ErrNotStarted
	}

	logger.WithFile(file.ID).WithField("name", file.Name).Info("File uploaded")
	return nil
}

// Select makes id the current file. An empty id clears the selection.
func (c *Controller) Select(ctx context.Context, id string) error {
	c.tierMu.RLock()
	defer c.tierMu.RUnlock()

	now := c.now()
	c.mu.Lock()
	if id == "" {
		c.st.SelectedFileID = ""
		c.mu.Unlock()
		c.notify()
		return nil
	}
	f := c.st.file(id)
	if f == nil {
		c.mu.Unlock()
		err := fmt.Errorf("%w: %s", ErrUnknownFile, id)
		c.fail("Select failed", err)
		return err
	}
	f.LastAccessedAt = now
	c.st.SelectedFileID = id
	c.st.LastError = ""
	mode := c.st.Mode
	files := append([]models.File(nil), c.st.Files...)
	c.mu.Unlock()
	c.notify()

	switch mode {
	case ModeConnected:
		if err := c.store.TouchFileAccess(ctx, id); err != nil {
			logger.WithFile(id).WithError(err).Warn("Could not record file access")
		}
	case ModeDegraded:
		c.writeCache("files", func(fc FallbackCache) error { return fc.SaveFiles(files) })
	}
	return nil
}

// Delete removes a file with its analyses and chat. Deleting an unknown id
// succeeds.
func (c *Controller) Delete(ctx context.Context, id string) error {
	c.tierMu.RLock()
	defer c.tierMu.RUnlock()

	switch c.Mode() {
	case ModeConnected:
		if err := c.store.DeleteFile(ctx, id); err != nil {
			c.fail("Delete failed", err)
			return err
		}
		files, analyses, chats, err := c.loadStore(ctx)
		c.update(func(st *State) {
			if err != nil {
				removeFile(st, id)
				st.LastError = fmt.Sprintf("Could not refresh files: %v", err)
			} else {
				if live, ok := st.Chats[c.chatFileID]; ok && c.chatFileID != id {
					chats[c.chatFileID] = live
				}
				st.Files, st.Analyses, st.Chats = files, analyses, chats
				st.LastError = ""
			}
			reselectAfterDelete(st, id)
		})

	case ModeDegraded:
		c.mu.Lock()
		removeFile(&c.st, id)
		reselectAfterDelete(&c.st, id)
		c.st.LastError = ""
		snap := &cache.Snapshot{
			Files:    append([]models.File(nil), c.st.Files...),
			Analyses: cloneAnalyses(c.st.Analyses),
			Chats:    cloneChats(c.st.Chats),
		}
		c.mu.Unlock()
		c.notify()
		c.writeCache("all", func(fc FallbackCache) error { return fc.Save(snap) })

	default:
		return ErrNotStarted
	}

	logger.WithFile(id).Info("File deleted")
	return nil
}

// Analyze runs the model over the selected file. A second call while one is
// running returns ErrBusy and changes nothing.
func (c *Controller) Analyze(ctx context.Context) error {
	c.mu.Lock()
	if c.st.IsAnalyzing || c.reconnecting {
		c.mu.Unlock()
		return ErrBusy
	}
	sel := c.st.SelectedFile()
	if sel == nil {
		c.mu.Unlock()
		c.fail("Analysis failed", ErrNoSelection)
		return ErrNoSelection
	}
	file := *sel
	c.st.IsAnalyzing = true
	c.st.LastError = ""
	c.st.Chats[file.ID] = []models.ChatMessage{}
	c.mu.Unlock()
	c.notify()

	defer c.update(func(st *State) { st.IsAnalyzing = false })

	log := logger.WithFile(file.ID)
	c.clearChat(ctx, file.ID)

	start := c.now()
	raw, err := c.analyzer.Analyze(ctx, &file)
	if err != nil {
		log.WithError(err).Error("Analysis request failed")
		c.fail("Analysis failed", err)
		return fmt.Errorf("%w: %w", ErrAnalysisFailed, err)
	}

	out := analysis.Parse(raw)
	result := out.Result
	result.FileID = file.ID
	result.AnalyzedAt = c.now()
	result.ProcessingTimeMs = result.AnalyzedAt.Sub(start).Milliseconds()

	if out.ChartDropped != nil {
		log.WithError(out.ChartDropped).Warn("Dropped malformed chart data")
	}
	if out.QuestionsDropped != nil {
		log.WithError(out.QuestionsDropped).Warn("Dropped malformed suggested questions")
	}

	stored := result.Clone()
	var deleted bool
	c.update(func(st *State) {
		if st.file(file.ID) == nil {
			deleted = true
			delete(st.Chats, file.ID)
			return
		}
		st.Analyses[file.ID] = stored
	})
	if deleted {
		log.Warn("File deleted during analysis, discarding result")
		return nil
	}

	if out.Unparsed != nil {
		// the placeholder is shown but never replaces a stored result
		log.WithError(out.Unparsed).Warn("Model response could not be parsed")
		return nil
	}
	c.persistAnalysis(ctx, result)
	log.WithField("processing_ms", result.ProcessingTimeMs).Info("Analysis completed")
	return nil
}

func (c *Controller) clearChat(ctx context.Context, fileID string) {
	c.tierMu.RLock()
	defer c.tierMu.RUnlock()

	c.mu.Lock()
	mode := c.st.Mode
	chats := cloneChats(c.st.Chats)
	c.mu.Unlock()

	switch mode {
	case ModeConnected:
		if err := c.store.DeleteChatHistory(ctx, fileID); err != nil {
			logger.WithFile(fileID).WithError(err).Warn("Could not clear stored chat history")
		}
	case ModeDegraded:
		c.writeCache("chats", func(fc FallbackCache) error { return fc.SaveChats(chats) })
	}
}

func (c *Controller) persistAnalysis(ctx context.Context, r *models.AnalysisResult) {
	c.tierMu.RLock()
	defer c.tierMu.RUnlock()

	if c.Mode() == ModeConnected {
		_, err := c.store.PutAnalysis(ctx, r.FileID, r, r.ProcessingTimeMs)
		if err == nil {
			return
		}
		logger.WithFile(r.FileID).WithError(err).Warn("Could not store analysis, writing to fallback cache")
	}

	analyses := c.Snapshot().Analyses
	c.writeCache("analyses", func(fc FallbackCache) error { return fc.SaveAnalyses(analyses) })
}

// SendChat asks a follow-up question about the selected file and streams the
// reply into its history. On failure the question stays and the partial
// reply is removed.
func (c *Controller) SendChat(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrValidation
	}

	c.mu.Lock()
	if c.st.IsChatting || c.reconnecting {
		c.mu.Unlock()
		return ErrBusy
	}
	sel := c.st.SelectedFile()
	if sel == nil {
		c.mu.Unlock()
		return ErrNoSelection
	}
	result := c.st.Analyses[sel.ID]
	if result == nil {
		c.mu.Unlock()
		return ErrNotAnalyzed
	}
	file := *sel
	report := result.MarkdownReport
	history := append(models.CloneMessages(c.st.Chats[file.ID]), models.ChatMessage{Role: models.RoleUser, Text: text})
	c.st.Chats[file.ID] = models.CloneMessages(history)
	c.st.IsChatting = true
	c.st.LastError = ""
	c.chatFileID = file.ID
	c.mu.Unlock()
	c.notify()

	defer c.update(func(st *State) {
		st.IsChatting = false
		c.chatFileID = ""
	})

	acc := NewAccumulator(controllerSink{c}, file.ID)
	stream, err := c.chatter.Chat(ctx, services.ChatRequest{
		File:    &file,
		Report:  report,
		History: history,
		Message: text,
	})
	if err == nil {
		err = acc.Drain(stream)
	}
	if err != nil {
		if acc.Started() {
			c.dropPartialReply(file.ID)
		}
		logger.WithFile(file.ID).WithError(err).Error("Chat reply failed")
		c.fail("Chat failed", err)
		return fmt.Errorf("%w: %w", ErrChatFailed, err)
	}

	c.persistChat(ctx, file.ID)
	return nil
}

func (c *Controller) dropPartialReply(fileID string) {
	c.update(func(st *State) {
		msgs := st.Chats[fileID]
		if n := len(msgs); n > 0 && msgs[n-1].Role == models.RoleModel {
			st.Chats[fileID] = msgs[:n-1]
		}
	})
}

func (c *Controller) persistChat(ctx context.Context, fileID string) {
	c.tierMu.RLock()
	defer c.tierMu.RUnlock()

	c.mu.Lock()
	if c.st.file(fileID) == nil {
		delete(c.st.Chats, fileID)
		c.mu.Unlock()
		logger.WithFile(fileID).Warn("File deleted during chat, discarding reply")
		return
	}
	mode := c.st.Mode
	msgs := models.CloneMessages(c.st.Chats[fileID])
	chats := cloneChats(c.st.Chats)
	c.mu.Unlock()

	switch mode {
	case ModeConnected:
		if err := c.store.ReplaceChatHistory(ctx, fileID, msgs); err != nil {
			logger.WithFile(fileID).WithError(err).Warn("Could not store chat history")
		}
	case ModeDegraded:
		c.writeCache("chats", func(fc FallbackCache) error { return fc.SaveChats(chats) })
	}
}

type controllerSink struct{ c *Controller }

func (s controllerSink) AppendPlaceholder(fileID string) {
	s.c.update(func(st *State) {
		if st.file(fileID) == nil {
			return
		}
		st.Chats[fileID] = append(st.Chats[fileID], models.ChatMessage{Role: models.RoleModel})
	})
}

func (s controllerSink) ReplaceLast(fileID, text string) bool {
	var ok bool
	s.c.update(func(st *State) {
		msgs := st.Chats[fileID]
		if n := len(msgs); n > 0 && msgs[n-1].Role == models.RoleModel {
			msgs[n-1].Text = text
			ok = true
		}
	})
	return ok
}

// insertFile adds f keeping the most recently uploaded file first.
func insertFile(files []models.File, f models.File) []models.File {
	out := append(append([]models.File(nil), files...), f)
	slices.SortStableFunc(out, func(a, b models.File) int {
		return b.UploadedAt.Compare(a.UploadedAt)
	})
	return out
}

func removeFile(st *State, id string) {
	st.Files = slices.DeleteFunc(append([]models.File(nil), st.Files...), func(f models.File) bool {
		return f.ID == id
	})
	delete(st.Analyses, id)
	delete(st.Chats, id)
}

func reselectAfterDelete(st *State, deleted string) {
	if st.SelectedFileID != deleted {
		dropStaleSelection(st)
		return
	}
	st.SelectedFileID = ""
	if len(st.Files) > 0 {
		st.SelectedFileID = st.Files[0].ID
	}
}

func dropStaleSelection(st *State) {
	if st.SelectedFileID != "" && st.file(st.SelectedFileID) == nil {
		st.SelectedFileID = ""
	}
}
