package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/matzehuels/pixelmorph/pkg/cache"
	"github.com/matzehuels/pixelmorph/pkg/errors"
	"github.com/matzehuels/pixelmorph/pkg/grid"
	"github.com/matzehuels/pixelmorph/pkg/morph"
	"github.com/matzehuels/pixelmorph/pkg/observability"
)

const (
	defaultAddr      = ":8080"
	defaultMaxMorphs = 64

	// maxUploadBytes bounds a POST /morphs body.
	maxUploadBytes = 32 << 20

	// maxFrameDT bounds the dt query parameter of a frame request.
	maxFrameDT = time.Second

	// defaultIdleTTL is how long a morph may go without requests before it
	// is cancelled to make room for new ones.
	defaultIdleTTL = 10 * time.Minute
)

// serveCommand creates the serve command, an HTTP transport over the morph
// engine.
func (c *CLI) serveCommand() *cobra.Command {
	var (
		addr      string
		maxMorphs int
		noCache   bool
		redisAddr string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve morphs over HTTP",
		Long: `Serve exposes the morph engine over HTTP:

  POST   /morphs             start a morph (multipart: source, target, config)
  GET    /morphs/{id}        morph status as JSON
  GET    /morphs/{id}/frame  advance by ?dt= (default 16ms) and return a PNG
  DELETE /morphs/{id}        cancel a morph`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(c.configPath)
			if err != nil {
				return err
			}
			f := cmd.Flags()
			if f.Changed("addr") {
				cfg.Server.Addr = addr
			}
			if f.Changed("max-morphs") {
				cfg.Server.MaxMorphs = maxMorphs
			}
			if noCache {
				cfg.Cache.Disabled = true
			}
			if redisAddr != "" {
				cfg.Cache.Redis = redisAddr
			}
			return c.runServe(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", defaultAddr, "listen address")
	cmd.Flags().IntVar(&maxMorphs, "max-morphs", defaultMaxMorphs, "maximum number of live morphs")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "disable the assignment cache")
	cmd.Flags().StringVar(&redisAddr, "redis", "", "share solved assignments through redis at this address")

	return cmd
}

func (c *CLI) runServe(ctx context.Context, cfg fileConfig) error {
	logger := loggerFromContext(ctx)

	store, err := newCache(ctx, cfg.Cache)
	if err != nil {
		return fmt.Errorf("open cache: %w", err)
	}
	defer store.Close()

	srv := newServer(store, cfg, logger)
	defer srv.close()

	httpSrv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- httpSrv.ListenAndServe() }()

	printSuccess("Listening on %s", StyleHighlight.Render(cfg.Server.Addr))
	printNextStep("Start a morph", fmt.Sprintf("curl -F source=@a.png -F target=@b.png http://localhost%s/morphs", cfg.Server.Addr))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown", "error", err)
	}
	return ctx.Err()
}

// =============================================================================
// Server
// =============================================================================

// server maps morph ids to their handles. Each morph gets its own engine so
// morphs from different clients never supersede each other.
type server struct {
	cache    cache.Cache
	defaults fileConfig
	logger   *log.Logger

	idleTTL time.Duration
	now     func() time.Time

	mu     sync.Mutex
	morphs map[uuid.UUID]*session
}

type session struct {
	engine   *morph.Engine
	handle   *morph.Handle
	lastUsed time.Time
}

// expired reports whether the session has been idle longer than ttl.
func (s *session) expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(s.lastUsed) > ttl
}

func newServer(c cache.Cache, defaults fileConfig, logger *log.Logger) *server {
	if defaults.Server.MaxMorphs <= 0 {
		defaults.Server.MaxMorphs = defaultMaxMorphs
	}
	return &server{
		cache:    c,
		defaults: defaults,
		logger:   logger,
		idleTTL:  defaultIdleTTL,
		now:      time.Now,
		morphs:   make(map[uuid.UUID]*session),
	}
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.instrument)

	r.Route("/morphs", func(r chi.Router) {
		r.Post("/", s.handleStart)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.handleStatus)
			r.Get("/frame", s.handleFrame)
			r.Delete("/", s.handleCancel)
		})
	})
	return r
}

// instrument reports requests to the HTTP hooks and logs them.
func (s *server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		hooks := observability.HTTP()
		hooks.OnRequest(r.Context(), r.Method, route)
		hooks.OnResponse(r.Context(), r.Method, route, status, time.Since(start))
		s.logger.Debug("request", "method", r.Method, "route", route, "status", status, "duration", time.Since(start))
	})
}

func (s *server) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, sess := range s.morphs {
		sess.engine.Close()
		delete(s.morphs, id)
	}
}

func (s *server) lookup(r *http.Request) (*session, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "invalid morph id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.morphs[id]
	if !ok {
		return nil, errors.New(errors.ErrCodeNotFound, "morph %s not found", id)
	}
	sess.lastUsed = s.now()
	return sess, nil
}

// evictIdle cancels and forgets morphs idle longer than the TTL. The caller
// holds s.mu.
func (s *server) evictIdle() {
	now := s.now()
	for id, sess := range s.morphs {
		if sess.expired(now, s.idleTTL) {
			sess.engine.Close()
			delete(s.morphs, id)
			s.logger.Debug("evicted idle morph", "id", id)
		}
	}
}

// =============================================================================
// Handlers
// =============================================================================

type startResponse struct {
	ID     uuid.UUID    `json:"id"`
	Status morph.Status `json:"status"`
}

// handleStart starts a morph from a multipart form with source and target
// image files and an optional JSON config field.
func (s *server) handleStart(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, errors.Wrap(errors.ErrCodeInvalidInput, err, "parse form"))
		return
	}
	src, err := formImage(r, "source", s.defaults.Input)
	if err != nil {
		writeError(w, err)
		return
	}
	dst, err := formImage(r, "target", s.defaults.Input)
	if err != nil {
		writeError(w, err)
		return
	}

	cfg := s.defaults.Morph
	if raw := r.FormValue("config"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
			writeError(w, errors.Wrap(errors.ErrCodeInvalidConfig, err, "decode config"))
			return
		}
	}
	cfg.Logger = s.logger

	s.mu.Lock()
	s.evictIdle()
	if len(s.morphs) >= s.defaults.Server.MaxMorphs {
		s.mu.Unlock()
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{
			Code:    "TOO_MANY_MORPHS",
			Message: fmt.Sprintf("at most %d morphs may be live", s.defaults.Server.MaxMorphs),
		})
		return
	}
	engine := morph.NewEngine(s.cache, nil, s.logger)
	s.mu.Unlock()

	h, err := engine.Start(r.Context(), src, dst, cfg)
	if err != nil {
		writeError(w, err)
		return
	}

	s.mu.Lock()
	s.morphs[h.ID()] = &session{engine: engine, handle: h, lastUsed: s.now()}
	s.mu.Unlock()

	s.logger.Info("started morph", "id", h.ID(), "resolution", cfg.Resolution, "algorithm", cfg.Algorithm)
	writeJSON(w, http.StatusCreated, startResponse{ID: h.ID(), Status: h.Status()})
}

func (s *server) handleStatus(w http.ResponseWriter, r *http.Request) {
	sess, err := s.lookup(r)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.handle.Status())
}

// handleFrame advances the morph by ?dt= and returns the frame as PNG. The
// X-Morph-Settled header reports whether the morph has settled.
func (s *server) handleFrame(w http.ResponseWriter, r *http.Request) {
	sess, err := s.lookup(r)
	if err != nil {
		writeError(w, err)
		return
	}
	dt := morph.FrameInterval(morph.DefaultFPS)
	if q := r.URL.Query().Get("dt"); q != "" {
		d, err := time.ParseDuration(q)
		if err != nil || d < 0 || d > maxFrameDT {
			writeError(w, errors.New(errors.ErrCodeInvalidInput, "dt must be a duration between 0 and %s, got %q", maxFrameDT, q))
			return
		}
		dt = d
	}

	frame, err := sess.handle.AdvanceAndRender(dt)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Morph-Settled", fmt.Sprint(sess.handle.IsSettled()))
	w.Header().Set("X-Morph-Frame", fmt.Sprint(sess.handle.Frame()))
	if err := png.Encode(w, frame); err != nil {
		s.logger.Warn("encode frame", "id", sess.handle.ID(), "error", err)
	}
}

func (s *server) handleCancel(w http.ResponseWriter, r *http.Request) {
	sess, err := s.lookup(r)
	if err != nil {
		writeError(w, err)
		return
	}
	sess.engine.Close()

	s.mu.Lock()
	delete(s.morphs, sess.handle.ID())
	s.mu.Unlock()

	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// Helpers
// =============================================================================

// formImage decodes the named multipart file and prepares it like the CLI
// prepares files.
func formImage(r *http.Request, field string, cfg inputConfig) (image.Image, error) {
	f, _, err := r.FormFile(field)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "missing %s image", field)
	}
	defer f.Close()
	return decodeInput(f, field, cfg)
}

// decodeInput decodes an image and prepares it for sampling: oversized
// images are scaled down, then the configured square region is cropped out.
func decodeInput(rd io.Reader, name string, cfg inputConfig) (image.Image, error) {
	img, _, err := image.Decode(rd)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "decode %s", name)
	}
	if cfg.MaxSize > 0 {
		img = grid.LimitSize(img, cfg.MaxSize)
	}
	if cfg.Crop.Scale == 0 {
		cfg.Crop = grid.DefaultCropScale
	}
	region := cfg.Crop.Region(img.Bounds())
	return cfg.Crop.Apply(img, min(region.Dx(), region.Dy())), nil
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps coded errors to HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch errors.GetCode(err) {
	case errors.ErrCodeInvalidConfig, errors.ErrCodeInvalidInput, errors.ErrCodeImageSizeMismatch:
		status = http.StatusBadRequest
	case errors.ErrCodeSolverExceeded:
		status = http.StatusUnprocessableEntity
	case errors.ErrCodeNotFound:
		status = http.StatusNotFound
	case errors.ErrCodeCancelled:
		status = http.StatusGone
	}
	code := string(errors.GetCode(err))
	if code == "" {
		code = string(errors.ErrCodeInternal)
	}
	writeJSON(w, status, errorResponse{Code: code, Message: errors.UserMessage(err)})
}
