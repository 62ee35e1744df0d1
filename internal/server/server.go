// Package server exposes a live session over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/san-kum/conesim/internal/control"
	"github.com/san-kum/conesim/internal/metrics"
	"github.com/san-kum/conesim/internal/sim"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Config holds server configuration.
type Config struct {
	Bind string
	Port int
	// FrameRate is the number of session ticks per second.
	FrameRate int
	// GainRate and GainBurst bound how often PUT /api/gains is accepted.
	GainRate  rate.Limit
	GainBurst int
	Logger    *zap.Logger
}

func DefaultConfig() Config {
	return Config{
		Bind:      "127.0.0.1",
		Port:      8080,
		FrameRate: 60,
		GainRate:  rate.Every(100 * time.Millisecond),
		GainBurst: 5,
	}
}

// Server wraps the HTTP server, the router and the ticker that drives the
// session.
type Server struct {
	cfg      Config
	session  *sim.Session
	watchdog metrics.Watchdog
	limiter  *rate.Limiter
	router   *chi.Mux
	logger   *zap.Logger

	mu    sync.Mutex
	gains control.Gains
	cut   bool
}

// New returns an initialized server. The session should carry the
// watchdog as its guard.
func New(cfg Config, s *sim.Session, w metrics.Watchdog) *Server {
	if cfg.FrameRate <= 0 {
		cfg.FrameRate = 60
	}
	if cfg.GainBurst <= 0 {
		cfg.GainBurst = 1
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	k, _ := control.GainsFromSlice(s.Gains())

	srv := &Server{
		cfg:      cfg,
		session:  s,
		watchdog: w,
		limiter:  rate.NewLimiter(cfg.GainRate, cfg.GainBurst),
		logger:   logger,
		gains:    k,
	}
	srv.router = srv.routes()
	return srv
}

func (s *Server) routes() *chi.Mux {
	r := chi.NewRouter()
	r.Use(s.accessLogger)

	r.Route("/api", func(r chi.Router) {
		r.Get("/state", s.handleState)
		r.Get("/poles", s.handlePoles)
		r.Put("/gains", s.handleGains)
		r.Post("/disturb", s.handleDisturb)
		r.Post("/reset", s.handleReset)
	})
	return r
}

// Router returns the underlying router, useful for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) accessLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("request",
			zap.String("remote", r.RemoteAddr),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("took", time.Since(start)),
		)
	})
}

// Addr returns the listening address.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.cfg.Bind, fmt.Sprint(s.cfg.Port))
}

// Tick advances the session by one frame and applies the watchdog cutoff.
func (s *Server) Tick() sim.Snapshot {
	snap := s.session.Tick()
	if snap.Phase != sim.Stepping {
		return snap
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if v := s.watchdog.Evaluate(snap.X); v.CutControl && !s.cut {
		s.cut = true
		s.session.SetGains(control.Gains{})
		s.logger.Info("control cut", zap.Float64("t", snap.T), zap.Float64("tilt", snap.Tilt()))
	}
	return snap
}

func (s *Server) setGains(k control.Gains) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gains = k
	if !s.cut {
		s.session.SetGains(k)
	}
}

func (s *Server) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session.Reset()
	s.session.SetGains(s.gains)
	s.cut = false
}

// Start ticks the session and serves HTTP until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.Addr())
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is Start on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	srv := &http.Server{Handler: s.router, ReadHeaderTimeout: 5 * time.Second}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(time.Second / time.Duration(s.cfg.FrameRate))
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Tick()
			}
		}
	}()
	go func() {
		defer wg.Done()
		<-ctx.Done()
		ctxTo, cancelTo := context.WithTimeout(context.Background(), time.Second)
		defer cancelTo()
		srv.Shutdown(ctxTo)
	}()

	s.logger.Info("listening", zap.Stringer("addr", ln.Addr()))
	err := srv.Serve(ln)
	cancel()
	wg.Wait()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
