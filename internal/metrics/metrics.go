package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	uploads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pdfseek",
			Name:      "uploads_total",
			Help:      "Uploads by result (loaded, rejected, failed)",
		},
		[]string{"result"},
	)

	searches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pdfseek",
			Name:      "searches_total",
			Help:      "Keyword searches by source (text, voice) and outcome (found, not_found, no_document, failed)",
		},
		[]string{"source", "outcome"},
	)

	renderLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pdfseek",
			Name:      "render_duration_seconds",
			Help:      "Page render duration by highlight flag",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"highlight"},
	)

	extractLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "pdfseek",
			Name:      "search_scan_duration_seconds",
			Help:      "Time to extract and scan every page of a document",
			Buckets:   prometheus.DefBuckets,
		},
	)

	recognitionErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pdfseek",
			Name:      "speech_errors_total",
			Help:      "Speech recognition errors by code",
		},
		[]string{"code"},
	)

	activeSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "pdfseek",
			Name:      "sessions_active",
			Help:      "Viewer sessions currently held in memory",
		},
	)
)

var once sync.Once

// Init registers collectors. Safe to call more than once.
func Init() {
	once.Do(func() {
		prometheus.MustRegister(uploads, searches, renderLatency, extractLatency, recognitionErrors, activeSessions)
	})
}

// Handler returns the http.Handler for /metrics
func Handler() http.Handler { return promhttp.Handler() }

func IncUpload(result string)          { uploads.WithLabelValues(result).Inc() }
func IncSearch(source, outcome string) { searches.WithLabelValues(source, outcome).Inc() }
func IncSpeechError(code string)       { recognitionErrors.WithLabelValues(code).Inc() }
func SetSessions(n int)                { activeSessions.Set(float64(n)) }

func ObserveRender(highlight bool, dur time.Duration) {
	renderLatency.WithLabelValues(boolToStr(highlight)).Observe(dur.Seconds())
}

func ObserveScan(dur time.Duration) { extractLatency.Observe(dur.Seconds()) }

func boolToStr(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
