package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/fiplanner/internal/config"
	"github.com/sells-group/fiplanner/internal/export"
	"github.com/sells-group/fiplanner/internal/ingest"
	"github.com/sells-group/fiplanner/internal/model"
	"github.com/sells-group/fiplanner/internal/planner"
	"github.com/sells-group/fiplanner/internal/store"
	"github.com/sells-group/fiplanner/internal/structured"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the planner HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("serve"); err != nil {
			return err
		}
		client, err := newCompletionClient(cfg)
		if err != nil {
			return err
		}

		st, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		if st != nil {
			defer st.Close() //nolint:errcheck
		}

		ref := loadReference(cfg)
		reportReference(cmd.ErrOrStderr(), ref)

		s := newServer(planner.New(client, ref, plannerConfig(cfg)), newIngestor(cfg), st, cfg.Server)

		port := resolvePort(servePort, cfg)
		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           s.routes(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				zap.L().Warn("server shutdown", zap.Error(err))
			}
		}()

		zap.L().Info("starting server",
			zap.Int("port", port),
			zap.Bool("archive", st != nil),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}
		return nil
	},
}

func resolvePort(flag int, c *config.Config) int {
	if flag > 0 {
		return flag
	}
	return c.Server.Port
}

// server holds the dependencies shared by the API handlers. store may be nil
// when the archive is disabled.
type server struct {
	planner     *planner.Planner
	ingestor    *ingest.Ingestor
	store       store.Store
	limiter     *rate.Limiter
	maxUpload   int64
	corsOrigins []string
	now         func() time.Time
}

func newServer(p *planner.Planner, in *ingest.Ingestor, st store.Store, sc config.ServerConfig) *server {
	return &server{
		planner:     p,
		ingestor:    in,
		store:       st,
		limiter:     rate.NewLimiter(rate.Limit(sc.RateLimit), sc.RateBurst),
		maxUpload:   sc.MaxUploadMB << 20,
		corsOrigins: sc.CORSOrigins,
		now:         time.Now,
	}
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:     s.corsOrigins,
		AllowedMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:     []string{"Accept", "Content-Type"},
		ExposedHeaders:     []string{"Content-Disposition"},
		MaxAge:             300,
		OptionsPassthrough: false,
	}))

	r.Get("/health", s.handleHealth)
	r.Get("/facts", s.handleFacts)
	r.Post("/extract", s.handleExtract)
	r.With(s.rateLimit).Post("/plan", s.handlePlan)

	r.Route("/plans", func(r chi.Router) {
		r.Get("/", s.handleListPlans)
		r.Get("/{id}", s.handleGetPlan)
		r.Get("/{id}/export", s.handleExportPlan)
	})
	return r
}

// requestLogger logs one line per request with the chi request id.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Info("http request",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("elapsed", time.Since(start)),
		)
	})
}

// rateLimit rejects requests over the configured rate instead of queueing
// them, so a burst of plan requests cannot pile up completion calls.
func (s *server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded, retry shortly")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSONResponse(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSONResponse(w, status, map[string]string{"error": msg})
}

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	ref := s.planner.Reference()
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"facts":    ref.FactsStatus.OK(),
		"snippets": ref.SnippetsStatus.OK(),
		"archive":  s.store != nil,
	})
}

func (s *server) handleFacts(w http.ResponseWriter, _ *http.Request) {
	writeJSONResponse(w, http.StatusOK, s.planner.Reference())
}

// readUpload pulls the optional "file" part out of a multipart request.
// A missing file returns ok=false without error.
func (s *server) readUpload(r *http.Request) (name string, data []byte, ok bool, err error) {
	f, hdr, err := r.FormFile("file")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return "", nil, false, nil
		}
		return "", nil, false, err
	}
	defer f.Close() //nolint:errcheck

	data, err = io.ReadAll(f)
	if err != nil {
		return "", nil, false, err
	}
	return hdr.Filename, data, true, nil
}

func (s *server) parseMultipart(w http.ResponseWriter, r *http.Request) bool {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(s.maxUpload); err != nil {
		s.uploadError(w, err)
		return false
	}
	return true
}

func (s *server) uploadError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
		writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("upload exceeds %d MB", s.maxUpload>>20))
		return
	}
	writeError(w, http.StatusBadRequest, "invalid multipart upload: "+err.Error())
}

func (s *server) handleExtract(w http.ResponseWriter, r *http.Request) {
	if !s.parseMultipart(w, r) {
		return
	}
	name, data, ok, err := s.readUpload(r)
	if err != nil {
		s.uploadError(w, err)
		return
	}
	if !ok {
		writeError(w, http.StatusBadRequest, `multipart field "file" is required`)
		return
	}
	writeJSONResponse(w, http.StatusOK, s.ingestor.Ingest(r.Context(), name, data))
}

// planRequest is the JSON body of POST /plan. Profile fields left out keep
// the form defaults.
type planRequest struct {
	Profile      json.RawMessage `json:"profile"`
	DocumentText string          `json:"document_text,omitempty"`
}

type planResponse struct {
	ID           string             `json:"id"`
	Plan         string             `json:"plan"`
	Model        string             `json:"model"`
	CreatedAt    time.Time          `json:"created_at"`
	Profile      model.UserProfile  `json:"profile"`
	InputTokens  int64              `json:"input_tokens"`
	OutputTokens int64              `json:"output_tokens"`
	Structured   structured.Outcome `json:"structured"`
	Applied      []string           `json:"applied,omitempty"`
	Warnings     []string           `json:"warnings,omitempty"`
	Archived     bool               `json:"archived"`
}

// decodeProfile overlays raw onto the default profile.
func decodeProfile(raw []byte) (model.UserProfile, error) {
	p := model.DefaultProfile()
	if len(raw) == 0 || string(raw) == "null" {
		return p, nil
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, eris.Wrapf(model.ErrInvalidProfile, "decode profile: %v", err)
	}
	risk, err := model.ParseRiskProfile(string(p.RiskProfile))
	if err != nil {
		return p, err
	}
	p.RiskProfile = risk
	return p, nil
}

func (s *server) handlePlan(w http.ResponseWriter, r *http.Request) {
	var (
		req      planner.Request
		upload   *ingest.Result
		warnings []string
		err      error
	)

	if isMultipart(r) {
		if !s.parseMultipart(w, r) {
			return
		}
		if req.Profile, err = decodeProfile([]byte(r.FormValue("profile"))); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		name, data, ok, err := s.readUpload(r)
		if err != nil {
			s.uploadError(w, err)
			return
		}
		if ok {
			res := s.ingestor.Ingest(r.Context(), name, data)
			upload = &res
		}
	} else {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
		var body planRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				s.uploadError(w, err)
				return
			}
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.Profile, err = decodeProfile(body.Profile); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if body.DocumentText != "" {
			res := s.ingestor.Ingest(r.Context(), "document.txt", []byte(body.DocumentText))
			upload = &res
		}
	}

	var applied []string
	if upload != nil {
		applied = req.ApplyUpload(*upload)
		warnings = append(warnings, upload.Warnings...)
	}

	plan, err := s.planner.Generate(r.Context(), req)
	switch {
	case err == nil:
	case errors.Is(err, model.ErrInvalidProfile):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case planner.IsCompletion(err), errors.Is(err, planner.ErrNoClient):
		writeError(w, http.StatusBadGateway, "plan generation failed: "+err.Error())
		return
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := planResponse{
		ID:           plan.ID,
		Plan:         plan.Text,
		Model:        plan.Model,
		CreatedAt:    plan.CreatedAt,
		Profile:      plan.Profile,
		InputTokens:  plan.InputTokens,
		OutputTokens: plan.OutputTokens,
		Structured:   s.planner.Structured(plan),
		Applied:      applied,
		Warnings:     warnings,
	}
	if s.store != nil {
		if err := s.store.SavePlan(r.Context(), plan); err != nil {
			zap.L().Warn("plan not archived", zap.String("plan_id", plan.ID), zap.Error(err))
			resp.Warnings = append(resp.Warnings, "plan was generated but could not be archived")
		} else {
			resp.Archived = true
		}
	}
	writeJSONResponse(w, http.StatusOK, resp)
}

func isMultipart(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data")
}

// requireArchive writes 404 when archiving is off.
func (s *server) requireArchive(w http.ResponseWriter) bool {
	if s.store == nil {
		writeError(w, http.StatusNotFound, "plan archive is disabled")
		return false
	}
	return true
}

func (s *server) handleListPlans(w http.ResponseWriter, r *http.Request) {
	if !s.requireArchive(w) {
		return
	}
	limit := store.DefaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	plans, err := s.store.ListPlans(r.Context(), limit)
	if err != nil {
		zap.L().Error("list plans", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not list plans")
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"plans": plans})
}

func (s *server) lookupPlan(w http.ResponseWriter, r *http.Request) (*model.PlanResult, bool) {
	if !s.requireArchive(w) {
		return nil, false
	}
	plan, err := s.store.GetPlan(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return nil, false
		}
		zap.L().Error("get plan", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not load plan")
		return nil, false
	}
	return plan, true
}

func (s *server) handleGetPlan(w http.ResponseWriter, r *http.Request) {
	plan, ok := s.lookupPlan(w, r)
	if !ok {
		return
	}
	writeJSONResponse(w, http.StatusOK, plan)
}

func (s *server) handleExportPlan(w http.ResponseWriter, r *http.Request) {
	f, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	plan, ok := s.lookupPlan(w, r)
	if !ok {
		return
	}
	doc, err := export.Render(plan, f, s.now())
	if err != nil {
		zap.L().Error("render export", zap.String("plan_id", plan.ID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not render plan")
		return
	}
	w.Header().Set("Content-Type", doc.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", doc.Filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc.Body)
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
