package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/axiomhq/axiom-go/axiom"
	"github.com/axiomhq/axiom-go/axiom/ingest"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"

	"github.com/local/pdfseek/internal/config"
)

const serviceName = "pdfseek"

var (
	global zerolog.Logger
	ax     *axiomSink
)

// Init builds the global logger from config: stdout (JSON or console), a rotated
// file, and optionally an Axiom sink for info and above.
func Init(cfg config.LoggingConfig, axCfg config.AxiomConfig) error {
	writers, err := buildWriters(cfg)
	if err != nil {
		return err
	}

	if axCfg.Send && axCfg.APIKey != "" {
		sink, err := newAxiomSink(axCfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Axiom disabled: %v\n", err)
		} else {
			ax = sink
			writers = append(writers, sink)
		}
	}

	zerolog.TimeFieldFormat = time.RFC3339
	lvl, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		lvl = zerolog.InfoLevel
	}

	global = zerolog.New(io.MultiWriter(writers...)).
		Level(lvl).
		With().Timestamp().Str("service", serviceName).
		Logger()
	log.Logger = global
	return nil
}

func buildWriters(cfg config.LoggingConfig) ([]io.Writer, error) {
	var writers []io.Writer
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
			return nil, fmt.Errorf("create logs dir: %w", err)
		}
		writers = append(writers, &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		})
	}
	if cfg.Pretty {
		writers = append(writers, zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	} else {
		writers = append(writers, os.Stdout)
	}
	return writers, nil
}

// Close flushes the Axiom sink, if any.
func Close() {
	if ax != nil {
		_ = ax.Close()
		ax = nil
	}
}

// Get returns the global logger.
func Get() *zerolog.Logger { return &global }

// axiomSink is an io.Writer that batches zerolog JSON lines into Axiom events.
type axiomSink struct {
	client  *axiom.Client
	dataset string
	events  chan axiom.Event
	flush   time.Duration
	wg      sync.WaitGroup
	cancel  context.CancelFunc
}

func newAxiomSink(cfg config.AxiomConfig) (*axiomSink, error) {
	opts := []axiom.Option{axiom.SetToken(cfg.APIKey)}
	if cfg.OrgID != "" {
		opts = append(opts, axiom.SetOrganizationID(cfg.OrgID))
	}
	c, err := axiom.NewClient(opts...)
	if err != nil {
		return nil, err
	}
	dataset := cfg.Dataset
	if dataset == "" {
		dataset = "dev_" + serviceName
	}
	flush := cfg.FlushInterval
	if flush <= 0 {
		flush = 10 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &axiomSink{
		client:  c,
		dataset: dataset,
		events:  make(chan axiom.Event, 1000),
		flush:   flush,
		cancel:  cancel,
	}
	s.wg.Add(1)
	go s.run(ctx)
	return s, nil
}

// Write never blocks the caller; lines are dropped when the buffer is full.
func (s *axiomSink) Write(p []byte) (int, error) {
	ev := decodeEvent(p)
	if ev == nil {
		return len(p), nil
	}
	select {
	case s.events <- ev:
	default:
	}
	return len(p), nil
}

// decodeEvent turns one zerolog line into an Axiom event, or nil for debug lines.
func decodeEvent(p []byte) axiom.Event {
	var ev map[string]any
	if err := json.Unmarshal(p, &ev); err != nil {
		ev = map[string]any{"message": string(p), "level": "info"}
	}
	if lvl, _ := ev["level"].(string); lvl == "debug" || lvl == "trace" {
		return nil
	}
	if _, ok := ev[ingest.TimestampField]; !ok {
		ev[ingest.TimestampField] = time.Now()
	}
	return axiom.Event(ev)
}

func (s *axiomSink) run(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.flush)
	defer ticker.Stop()
	batch := make([]axiom.Event, 0, 200)
	send := func() {
		if len(batch) == 0 {
			return
		}
		ictx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		_, _ = s.client.IngestEvents(ictx, s.dataset, batch)
		cancel()
		batch = batch[:0]
	}
	for {
		select {
		case <-ctx.Done():
			send()
			return
		case <-ticker.C:
			send()
		case ev := <-s.events:
			batch = append(batch, ev)
			if len(batch) >= 200 {
				send()
			}
		}
	}
}

func (s *axiomSink) Close() error {
	s.cancel()
	s.wg.Wait()
	return nil
}
