// Package maze serves an endless tarpit of generated pages. Every URL under
// the link path answers with Markov babble sprinkled with links back into the
// maze, so a crawler that ignores the site keeps walking in circles instead
// of reaching anything real.
package maze

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"math/rand/v2"
	"net"
	"net/http"
	"strings"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/sitemirage/internal/config"
	"git.home.luguber.info/inful/sitemirage/internal/errors"
	"git.home.luguber.info/inful/sitemirage/internal/logfields"
	"git.home.luguber.info/inful/sitemirage/internal/markov"
	"git.home.luguber.info/inful/sitemirage/internal/metrics"
)

const linkChars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Server generates maze pages from a frozen Markov model.
type Server struct {
	cfg   config.MazeConfig
	model *markov.Model
	rec   *metrics.Recorder
	reg   *prom.Registry
	srv   *http.Server
}

// New builds a maze server. The model must be trained and frozen; an empty
// model would only ever produce blank pages.
func New(cfg config.MazeConfig, model *markov.Model) (*Server, error) {
	if model.Empty() {
		return nil, errors.New(errors.CategoryModel, errors.SeverityFatal,
			"maze requires a trained model; the training corpus produced no tokens")
	}
	reg := prom.NewRegistry()
	return &Server{
		cfg:   cfg,
		model: model,
		rec:   metrics.NewRecorder(reg),
		reg:   reg,
	}, nil
}

// Handler returns the full route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", metrics.HTTPHandler(s.reg))
	mux.HandleFunc("/", s.servePage)
	return mux
}

// Start binds the listen address and serves until Shutdown.
func (s *Server) Start(ctx context.Context) error {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("maze listen on %s: %w", s.cfg.Listen, err)
	}

	s.srv = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		// No write timeout: slow readers burning their own time on giant
		// pages is the point.
	}

	slog.Info("Maze server listening", slog.String("addr", ln.Addr().String()))
	if err := s.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *Server) servePage(w http.ResponseWriter, r *http.Request) {
	// Per-request stream seeded from the shared process source. Maze pages
	// are meant to differ on every visit.
	rng := rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))

	nTokens := s.cfg.MinTokens
	if s.cfg.MaxTokens > s.cfg.MinTokens {
		nTokens += rng.IntN(s.cfg.MaxTokens - s.cfg.MinTokens)
	}

	var b strings.Builder
	b.Grow(nTokens * 12)
	b.WriteString("<!doctype html><html lang=en><head><title>")
	b.WriteString(html.EscapeString(strings.TrimPrefix(r.URL.Path, "/")))
	b.WriteString("</title></head><body><p>")

	links := 0
	tokens := s.model.Generate(nTokens, rng)
	for _, token := range tokens {
		b.WriteByte(' ')
		b.WriteString(html.EscapeString(token))

		// Roughly 2% of tokens end a paragraph, another 2% grow a trap link.
		switch roll := rng.IntN(256); {
		case roll < 5:
			b.WriteString(".</p><p>")
		case roll < 10:
			name := randLink(rng)
			b.WriteString(` <a href="`)
			b.WriteString(s.cfg.LinkPath)
			b.WriteByte('/')
			b.WriteString(name)
			b.WriteString(`.html">`)
			b.WriteString(name)
			b.WriteString("</a>")
			links++
		}
	}
	b.WriteString("</p></body></html>")

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = fmt.Fprint(w, b.String())

	s.rec.RecordMazePage(len(tokens), links)
	slog.Debug("Served maze page",
		logfields.Path(r.URL.Path),
		logfields.Count(len(tokens)),
		slog.Int("links", links))
}

// randLink returns a random alphanumeric page name, 4 to 15 characters.
func randLink(rng *rand.Rand) string {
	n := 4 + rng.IntN(12)
	var sb strings.Builder
	sb.Grow(n)
	for i := 0; i < n; i++ {
		sb.WriteByte(linkChars[rng.IntN(len(linkChars))])
	}
	return sb.String()
}
