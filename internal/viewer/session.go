package viewer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/pdfseek/internal/filetype"
	"github.com/local/pdfseek/internal/metrics"
	"github.com/local/pdfseek/internal/pdfdoc"
	"github.com/local/pdfseek/internal/speech"
	"github.com/local/pdfseek/internal/storage"
	"github.com/local/pdfseek/internal/store"
	"github.com/local/pdfseek/internal/textprobe"
)

// Search sources, used for metrics and history.
const (
	SourceText  = "text"
	SourceVoice = "voice"
)

// Dependencies are shared by every session of a Registry.
type Dependencies struct {
	Engine   pdfdoc.Engine
	Detector *filetype.Detector
	Sources  storage.Store      // optional
	Sessions store.SessionStore // optional
}

// Options tune session behavior.
type Options struct {
	Scale          float64
	SearchTimeout  time.Duration
	ProbeThreshold int
	SpeechLang     string
}

// Result is what a user action produced: the notices to show and, for
// searches, what was found.
type Result struct {
	Notices []Notice `json:"notices"`
	Keyword string   `json:"keyword,omitempty"`
	Display string   `json:"keyword_display,omitempty"`
	Found   bool     `json:"found"`
	Page    int      `json:"page,omitempty"`
}

// Session is one viewer instance: the loaded document, the visible surface
// and the last searched keyword. Overlapping actions are not serialized; the
// last one to finish decides what is visible.
type Session struct {
	id   string
	deps Dependencies
	opts Options

	mu        sync.Mutex
	doc       *docRef
	docName   string
	source    []byte
	sourceKey string
	surface   *Surface
	keyword   string
	searched  bool
	lastUsed  time.Time
}

func newSession(id string, deps Dependencies, opts Options) *Session {
	if opts.Scale <= 0 {
		opts.Scale = 1.5
	}
	if deps.Detector == nil {
		deps.Detector = filetype.New()
	}
	return &Session{id: id, deps: deps, opts: opts, lastUsed: time.Now()}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

func (s *Session) touch() {
	s.mu.Lock()
	s.lastUsed = time.Now()
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsed
}

// restore seeds a fresh session from persisted metadata so Show can reload.
func (s *Session) restore(m store.Meta) {
	s.mu.Lock()
	s.docName = m.DocumentName
	s.sourceKey = m.StorageKey
	if m.LastKeyword != "" {
		s.keyword = m.LastKeyword
		s.searched = true
	}
	s.mu.Unlock()
}

func (s *Session) acquireDoc() *docRef {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doc == nil {
		return nil
	}
	s.doc.acquire()
	return s.doc
}

// swapDoc installs ref already acquired for the caller, who must release it,
// and retires the previous one.
func (s *Session) swapDoc(ref *docRef) {
	ref.acquire()
	s.mu.Lock()
	old := s.doc
	s.doc = ref
	s.mu.Unlock()
	if old != nil {
		old.retire()
	}
}

func (s *Session) setSurface(surf *Surface) {
	s.mu.Lock()
	s.surface = surf
	s.mu.Unlock()
}

// Load checks that data is a PDF, opens it and shows its first page.
// A non-PDF payload yields a notice and ErrNotPDF; an engine failure is
// logged and returned without a notice. Neither touches the session.
func (s *Session) Load(ctx context.Context, name string, data []byte, declared string) (Result, error) {
	s.touch()
	if err := s.deps.Detector.RequirePDF(data, declared); err != nil {
		metrics.IncUpload("rejected")
		log.Info().Str("session", s.id).Str("file", name).Err(err).Msg("upload rejected")
		return Result{Notices: []Notice{noticeInvalidPDF}}, err
	}

	ref, err := s.open(ctx, data)
	if err != nil {
		metrics.IncUpload("failed")
		log.Error().Err(err).Str("session", s.id).Str("file", name).Msg("failed to load pdf")
		return Result{}, err
	}
	metrics.IncUpload("loaded")

	key := s.persistSource(ctx, data)
	s.mu.Lock()
	prevKey := s.sourceKey
	s.docName = name
	s.source = data
	s.sourceKey = key
	s.mu.Unlock()
	s.swapDoc(ref)
	if prevKey != "" && prevKey != key && s.deps.Sources != nil {
		if err := s.deps.Sources.Delete(ctx, prevKey); err != nil && !errors.Is(err, storage.ErrNotFound) {
			log.Warn().Err(err).Str("session", s.id).Str("key", prevKey).Msg("delete replaced upload")
		}
	}

	log.Info().Str("session", s.id).Str("file", name).Int("pages", ref.doc.NumPages()).Msg("pdf loaded")
	res := Result{Notices: s.afterOpen(ctx, ref)}
	s.saveMeta(ctx)
	return res, nil
}

// Show reopens the retained source and renders its first page.
func (s *Session) Show(ctx context.Context) (Result, error) {
	s.touch()
	data, err := s.retainedSource(ctx)
	if errors.Is(err, ErrNoSource) {
		return Result{Notices: []Notice{noticeUploadFirst}}, err
	}
	if err != nil {
		log.Error().Err(err).Str("session", s.id).Msg("failed to read retained pdf")
		return Result{}, err
	}
	ref, err := s.open(ctx, data)
	if err != nil {
		log.Error().Err(err).Str("session", s.id).Msg("failed to reload pdf")
		return Result{}, err
	}
	s.mu.Lock()
	s.source = data
	s.mu.Unlock()
	s.swapDoc(ref)
	return Result{Notices: s.afterOpen(ctx, ref)}, nil
}

func (s *Session) open(ctx context.Context, data []byte) (*docRef, error) {
	doc, err := s.deps.Engine.Open(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("open document: %w", err)
	}
	return newDocRef(doc), nil
}

// afterOpen renders page 1 and probes for searchable text. It takes over the
// reference handed out by swapDoc.
func (s *Session) afterOpen(ctx context.Context, ref *docRef) []Notice {
	defer ref.release()

	if err := s.renderFrom(ctx, ref, 1); err != nil {
		log.Error().Err(err).Str("session", s.id).Msg("failed to render first page")
	}

	diag, err := textprobe.Probe(ctx, ref.doc, s.opts.ProbeThreshold, nil)
	if err != nil {
		log.Warn().Err(err).Str("session", s.id).Msg("text probe failed")
		return nil
	}
	if !diag.HasExtractableText {
		log.Info().Str("session", s.id).Ints("sampled", diag.SampledPages).Msg("document has no extractable text")
		return []Notice{noticeNoText}
	}
	return nil
}

func (s *Session) retainedSource(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	data, key := s.source, s.sourceKey
	s.mu.Unlock()
	if data != nil {
		return data, nil
	}
	if key == "" || s.deps.Sources == nil {
		return nil, ErrNoSource
	}
	return s.deps.Sources.Get(ctx, key)
}

func (s *Session) persistSource(ctx context.Context, data []byte) string {
	if s.deps.Sources == nil {
		return ""
	}
	key := storage.NewKey(s.id)
	if err := s.deps.Sources.Put(ctx, key, data); err != nil {
		log.Warn().Err(err).Str("session", s.id).Msg("could not retain upload; show will only work in this process")
		return ""
	}
	return key
}

// RenderPage replaces the surface with a plain render of page number.
// number is not range-checked here; the engine reports bad pages.
func (s *Session) RenderPage(ctx context.Context, number int) (Result, error) {
	s.touch()
	ref := s.acquireDoc()
	if ref == nil {
		return Result{Notices: []Notice{noticeLoadFirst}}, ErrNoDocument
	}
	defer ref.release()
	if err := s.renderFrom(ctx, ref, number); err != nil {
		log.Error().Err(err).Str("session", s.id).Int("page", number).Msg("render failed")
		return Result{}, err
	}
	return Result{Page: number}, nil
}

func (s *Session) renderFrom(ctx context.Context, ref *docRef, number int) error {
	start := time.Now()
	page, err := ref.doc.Page(ctx, number)
	if err != nil {
		return err
	}
	surf, err := render(ctx, page, s.opts.Scale)
	if err != nil {
		return err
	}
	metrics.ObserveRender(false, time.Since(start))
	s.setSurface(surf)
	return nil
}

func render(ctx context.Context, page pdfdoc.Page, scale float64) (*Surface, error) {
	img, err := page.Render(ctx, scale)
	if err != nil {
		return nil, err
	}
	return newSurface(page.Number(), page.Viewport(scale), img), nil
}

// Search finds the first page containing keyword and shows it highlighted.
func (s *Session) Search(ctx context.Context, keyword, source string) (Result, error) {
	s.touch()
	keyword = strings.TrimSpace(keyword)
	if source == "" {
		source = SourceText
	}

	ref := s.acquireDoc()
	if ref == nil {
		metrics.IncSearch(source, "no_document")
		return Result{Notices: []Notice{noticeLoadFirst}}, ErrNoDocument
	}
	defer ref.release()

	if s.opts.SearchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.SearchTimeout)
		defer cancel()
	}

	start := time.Now()
	match, err := Locate(ctx, ref.doc, keyword)
	metrics.ObserveScan(time.Since(start))
	if err != nil {
		metrics.IncSearch(source, "failed")
		log.Error().Err(err).Str("session", s.id).Str("keyword", keyword).Msg("error searching through pdf")
		return Result{Notices: []Notice{noticeSearchFailed}}, fmt.Errorf("%w: %w", ErrSearchFailed, err)
	}

	s.mu.Lock()
	s.keyword = keyword
	s.searched = true
	s.mu.Unlock()

	res := Result{Keyword: keyword, Display: KeywordDisplay(keyword)}
	rec := store.SearchRecord{Keyword: keyword, Source: source, At: time.Now()}
	if match == nil {
		metrics.IncSearch(source, "not_found")
		res.Notices = []Notice{noticeNotFound}
	} else {
		metrics.IncSearch(source, "found")
		res.Found, res.Page = true, match.Number
		rec.Found, rec.Page = true, match.Number
		res.Notices = []Notice{noticeFound(match.Number)}
		if err := s.showMatch(ctx, match, Fold(keyword)); err != nil {
			log.Error().Err(err).Str("session", s.id).Int("page", match.Number).Msg("highlight render failed")
		}
	}
	log.Info().Str("session", s.id).Str("source", source).Str("keyword", keyword).Bool("found", res.Found).Int("page", res.Page).Msg("search complete")

	s.record(ctx, rec)
	return res, nil
}

func (s *Session) showMatch(ctx context.Context, match *PageMatch, folded string) error {
	start := time.Now()
	surf, err := render(ctx, match.Page, s.opts.Scale)
	if err != nil {
		return err
	}
	Highlight(surf, match.Text, folded)
	metrics.ObserveRender(true, time.Since(start))
	s.setSurface(surf)
	return nil
}

// Voice runs a search with the transcript of a recognition event, or turns a
// recognition error into a notice.
func (s *Session) Voice(ctx context.Context, ev speech.Event) (Result, error) {
	keyword, err := ev.Transcript()
	if err != nil {
		var rerr *speech.RecognitionError
		if errors.As(err, &rerr) {
			metrics.IncSpeechError(rerr.Code)
			log.Warn().Str("session", s.id).Str("code", rerr.Code).Msg("speech recognition failed")
			if rerr.Unsupported() {
				return Result{Notices: []Notice{noticeUnsupported}}, err
			}
			return Result{Notices: []Notice{noticeRecognition(rerr.Code)}}, err
		}
		return Result{}, err
	}
	return s.Search(ctx, keyword, SourceVoice)
}

// WriteSurface encodes the visible surface as PNG.
func (s *Session) WriteSurface(w io.Writer) error {
	s.mu.Lock()
	surf := s.surface
	s.mu.Unlock()
	if surf == nil {
		return ErrNoDocument
	}
	return surf.EncodePNG(w)
}

// Surface returns the visible surface, or nil.
func (s *Session) Surface() *Surface {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.surface
}

// State is a snapshot of the session for the page.
type State struct {
	SessionID   string               `json:"session_id"`
	Document    string               `json:"document,omitempty"`
	Pages       int                  `json:"pages"`
	HasSource   bool                 `json:"has_source"`
	CurrentPage int                  `json:"current_page,omitempty"`
	Highlighted bool                 `json:"highlighted"`
	Keyword     string               `json:"keyword,omitempty"`
	Display     string               `json:"keyword_display,omitempty"`
	Scale       float64              `json:"scale"`
	SpeechLang  string               `json:"speech_lang"`
	History     []store.SearchRecord `json:"history,omitempty"`
}

// State reports what the session currently shows.
func (s *Session) State(ctx context.Context) State {
	s.mu.Lock()
	st := State{
		SessionID:  s.id,
		Document:   s.docName,
		HasSource:  s.source != nil || s.sourceKey != "",
		Scale:      s.opts.Scale,
		SpeechLang: s.opts.SpeechLang,
	}
	if s.doc != nil {
		st.Pages = s.doc.doc.NumPages()
	}
	if s.surface != nil {
		st.CurrentPage = s.surface.Page()
		st.Highlighted = s.surface.Highlighted()
	}
	if s.searched {
		st.Keyword = s.keyword
		st.Display = KeywordDisplay(s.keyword)
	}
	s.mu.Unlock()

	if s.deps.Sessions != nil {
		h, err := s.deps.Sessions.History(ctx, s.id, 0)
		if err != nil {
			log.Warn().Err(err).Str("session", s.id).Msg("read search history")
		}
		st.History = h
	}
	return st
}

func (s *Session) saveMeta(ctx context.Context) {
	if s.deps.Sessions == nil {
		return
	}
	s.mu.Lock()
	m := store.Meta{SessionID: s.id, DocumentName: s.docName, StorageKey: s.sourceKey, LastKeyword: s.keyword}
	if s.doc != nil {
		m.Pages = s.doc.doc.NumPages()
	}
	s.mu.Unlock()
	if err := s.deps.Sessions.SaveMeta(ctx, m); err != nil {
		log.Warn().Err(err).Str("session", s.id).Msg("save session metadata")
	}
}

func (s *Session) record(ctx context.Context, rec store.SearchRecord) {
	if s.deps.Sessions == nil {
		return
	}
	if err := s.deps.Sessions.AppendSearch(ctx, s.id, rec); err != nil {
		log.Warn().Err(err).Str("session", s.id).Msg("append search history")
	}
	s.saveMeta(ctx)
}

// Close drops the session's document.
func (s *Session) Close() {
	s.mu.Lock()
	ref := s.doc
	s.doc = nil
	s.surface = nil
	s.mu.Unlock()
	if ref != nil {
		ref.retire()
	}
}
