package web

import (
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/local/pdfseek/internal/filetype"
	"github.com/local/pdfseek/internal/metrics"
	"github.com/local/pdfseek/internal/speech"
	"github.com/local/pdfseek/internal/statuscheck"
	"github.com/local/pdfseek/internal/viewer"
)

// CookieName carries the viewer session id.
const CookieName = "pdfseek_session"

//go:embed templates/*.html
var templateFS embed.FS

type Web struct {
	tpl        *template.Template
	registry   *viewer.Registry
	status     *statuscheck.Checker
	maxUpload  int64
	speechLang string
	scale      float64
}

// Options configures the HTTP surface.
type Options struct {
	Registry    *viewer.Registry
	Status      *statuscheck.Checker
	MaxUploadMB int64
	SpeechLang  string
	Scale       float64
}

func New(opts Options) *Web {
	tpl := template.Must(template.ParseFS(templateFS, "templates/*.html"))
	maxUpload := opts.MaxUploadMB << 20
	if maxUpload <= 0 {
		maxUpload = 64 << 20
	}
	lang := opts.SpeechLang
	if lang == "" {
		lang = "en-US"
	}
	return &Web{
		tpl:        tpl,
		registry:   opts.Registry,
		status:     opts.Status,
		maxUpload:  maxUpload,
		speechLang: lang,
		scale:      opts.Scale,
	}
}

func (w *Web) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/", w.handleIndex)
	mux.HandleFunc("/health", func(wr http.ResponseWriter, r *http.Request) { wr.WriteHeader(http.StatusOK); _, _ = wr.Write([]byte("ok")) })
	mux.HandleFunc("/status", w.handleStatus)
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/api/document", w.handleDocument)
	mux.HandleFunc("/api/show", w.handleShow)
	mux.HandleFunc("/api/page/", w.handlePage)
	mux.HandleFunc("/api/search", w.handleSearch)
	mux.HandleFunc("/api/voice", w.handleVoice)
	mux.HandleFunc("/api/surface.png", w.handleSurface)
	mux.HandleFunc("/api/state", w.handleState)
}

// actionResponse is what every viewer action returns: its notices and
// outcome, plus the state the page should now show.
type actionResponse struct {
	viewer.Result
	State viewer.State `json:"state"`
	Error string       `json:"error,omitempty"`
}

// session resolves the caller's viewer session, issuing a cookie for new ones.
func (w *Web) session(wr http.ResponseWriter, r *http.Request) *viewer.Session {
	id := ""
	if c, err := r.Cookie(CookieName); err == nil {
		id = c.Value
	}
	s, issued := w.registry.Get(r.Context(), id)
	if issued {
		http.SetCookie(wr, &http.Cookie{
			Name:     CookieName,
			Value:    s.ID(),
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}
	return s
}

func (w *Web) handleIndex(wr http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(wr, r)
		return
	}
	if r.Method != http.MethodGet {
		wr.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.session(wr, r)
	wr.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := w.tpl.ExecuteTemplate(wr, "index.html", map[string]any{
		"SpeechLang": w.speechLang,
		"Scale":      w.scale,
	}); err != nil {
		log.Error().Err(err).Msg("render index")
	}
}

func (w *Web) handleStatus(wr http.ResponseWriter, r *http.Request) {
	if w.status == nil {
		http.Error(wr, "status unavailable", http.StatusServiceUnavailable)
		return
	}
	sum := w.status.Summary(r.Context())
	code := http.StatusOK
	if !sum.Healthy() {
		code = http.StatusServiceUnavailable
	}
	writeJSON(wr, code, sum)
}

// handleDocument accepts a multipart upload with the PDF in field "file".
func (w *Web) handleDocument(wr http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		wr.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	r.Body = http.MaxBytesReader(wr, r.Body, w.maxUpload)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		http.Error(wr, "invalid multipart form", http.StatusBadRequest)
		return
	}
	file, hdr, err := r.FormFile("file")
	if err != nil {
		http.Error(wr, "missing file", http.StatusBadRequest)
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		http.Error(wr, "read failed", http.StatusBadRequest)
		return
	}
	name := hdr.Filename
	if name == "" {
		name = "upload.pdf"
	}

	s := w.session(wr, r)
	res, err := s.Load(r.Context(), name, data, hdr.Header.Get("Content-Type"))
	w.respond(wr, r, s, res, err)
}

func (w *Web) handleShow(wr http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		wr.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	s := w.session(wr, r)
	res, err := s.Show(r.Context())
	w.respond(wr, r, s, res, err)
}

func (w *Web) handlePage(wr http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		wr.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	n, err := strconv.Atoi(strings.TrimPrefix(r.URL.Path, "/api/page/"))
	if err != nil {
		http.Error(wr, "invalid page number", http.StatusBadRequest)
		return
	}
	s := w.session(wr, r)
	res, err := s.RenderPage(r.Context(), n)
	w.respond(wr, r, s, res, err)
}

type searchReq struct {
	Keyword string `json:"keyword"`
}

func (w *Web) handleSearch(wr http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		wr.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req searchReq
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		http.Error(wr, "invalid json", http.StatusBadRequest)
		return
	}
	s := w.session(wr, r)
	res, err := s.Search(r.Context(), req.Keyword, viewer.SourceText)
	w.respond(wr, r, s, res, err)
}

func (w *Web) handleVoice(wr http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		wr.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	ev, err := speech.Decode(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(wr, "invalid speech event", http.StatusBadRequest)
		return
	}
	s := w.session(wr, r)
	res, err := s.Voice(r.Context(), ev)
	w.respond(wr, r, s, res, err)
}

func (w *Web) handleSurface(wr http.ResponseWriter, r *http.Request) {
	s := w.session(wr, r)
	wr.Header().Set("Content-Type", "image/png")
	wr.Header().Set("Cache-Control", "no-store")
	if err := s.WriteSurface(wr); err != nil {
		if errors.Is(err, viewer.ErrNoDocument) {
			wr.Header().Del("Content-Type")
			http.Error(wr, "nothing rendered", http.StatusNotFound)
			return
		}
		log.Error().Err(err).Str("session", s.ID()).Msg("write surface")
	}
}

func (w *Web) handleState(wr http.ResponseWriter, r *http.Request) {
	s := w.session(wr, r)
	writeJSON(wr, http.StatusOK, s.State(r.Context()))
}

func (w *Web) respond(wr http.ResponseWriter, r *http.Request, s *viewer.Session, res viewer.Result, err error) {
	resp := actionResponse{Result: res, State: s.State(r.Context())}
	if resp.Notices == nil {
		resp.Notices = []viewer.Notice{}
	}
	code := statusFor(err)
	if err != nil {
		resp.Error = err.Error()
	}
	writeJSON(wr, code, resp)
}

// statusFor maps action errors to HTTP codes. The notices in the body are
// what the user sees either way.
func statusFor(err error) int {
	var rerr *speech.RecognitionError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, filetype.ErrNotPDF):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, viewer.ErrNoDocument), errors.Is(err, viewer.ErrNoSource):
		return http.StatusConflict
	case errors.As(err, &rerr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, viewer.ErrSearchFailed):
		return http.StatusInternalServerError
	default:
		return http.StatusUnprocessableEntity
	}
}

func writeJSON(wr http.ResponseWriter, code int, v any) {
	wr.Header().Set("Content-Type", "application/json")
	wr.WriteHeader(code)
	_ = json.NewEncoder(wr).Encode(v)
}
