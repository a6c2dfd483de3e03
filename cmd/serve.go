package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/prospector-cli/internal/campaign"
	"github.com/sells-group/prospector-cli/internal/leadio"
	"github.com/sells-group/prospector-cli/internal/model"
	"github.com/sells-group/prospector-cli/internal/monitoring"
	"github.com/sells-group/prospector-cli/internal/store"
)

var servePort int

// runner starts an ingestion run.
type runner interface {
	Run(ctx context.Context, queries []string) (*model.RunResult, error)
}

// campaignSender sends campaigns and single preview messages.
type campaignSender interface {
	Run(ctx context.Context, c campaign.Campaign) (campaign.Report, error)
	Preview(ctx context.Context, subject, html, to string) (int, error)
}

// apiServer serves read access to the lead store plus suppression writes,
// on-demand ingestion runs and campaign sends.
type apiServer struct {
	ctx       context.Context
	store     store.Store
	runner    runner
	campaigns campaignSender
	collector *monitoring.Collector
	gatherer  prometheus.Gatherer
	lookback  int
	defaults  []string

	// Campaign defaults used when a request leaves them out.
	subject  string
	body     string
	dailyCap int

	running atomic.Bool
	sending atomic.Bool
	wg      sync.WaitGroup
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		metrics, err := monitoring.NewMetrics(reg)
		if err != nil {
			return err
		}

		env, err := initIngest(ctx, metrics, 0)
		if err != nil {
			return err
		}
		defer env.Close()

		collector := monitoring.NewCollector(env.Store)
		s := &apiServer{
			ctx:       ctx,
			store:     env.Store,
			runner:    env.Pipeline,
			collector: collector,
			gatherer:  reg,
			lookback:  cfg.Monitoring.LookbackWindowHours,
			defaults:  cfg.Search.DefaultQueries,
			subject:   cfg.Campaign.DefaultSubject,
			body:      campaign.DefaultBody(sender()),
			dailyCap:  cfg.Campaign.DailyCap,
		}
		if err := cfg.Validate("campaign"); err != nil {
			zap.L().Warn("campaign endpoints disabled", zap.Error(err))
		} else if d, err := newDispatcher(env.Store, metrics); err != nil {
			zap.L().Warn("campaign endpoints disabled", zap.Error(err))
		} else {
			s.campaigns = d
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}
		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           s.routes(cfg.Server.AllowedOrigins),
			ReadHeaderTimeout: 10 * time.Second,
		}

		checker := monitoring.NewChecker(collector, monitoring.NewAlerter(cfg.Monitoring), metrics, cfg.Monitoring)

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			zap.L().Info("starting server", zap.Int("port", port))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return eris.Wrap(err, "server listen")
			}
			return nil
		})
		g.Go(func() error {
			checker.Run(gctx)
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), 15*time.Second)
			defer cancel()
			err := srv.Shutdown(shutdownCtx)
			s.wg.Wait()
			return err
		})
		return g.Wait()
	},
}

func (s *apiServer) routes(origins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
	}))

	r.Get("/health", s.handleHealth)
	r.Get("/stats", s.handleStats)
	r.Get("/leads", s.handleLeads)
	r.Get("/leads/export.csv", s.handleExport)
	r.Post("/suppressions", s.handleSuppress)
	r.Get("/runs", s.handleListRuns)
	r.Post("/runs", s.handleStartRun)
	r.Post("/campaigns", s.handleStartCampaign)
	r.Post("/campaigns/preview", s.handlePreviewCampaign)
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *apiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		zap.L().Warn("health: store ping failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *apiServer) handleStats(w http.ResponseWriter, r *http.Request) {
	snap, err := s.collector.Collect(r.Context(), s.lookback)
	if err != nil {
		zap.L().Error("stats: collect failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to collect stats")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func queryLimit(r *http.Request, def int) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, &model.InputError{Field: "limit", Value: raw, Msg: "must be a positive integer"}
	}
	return n, nil
}

func (s *apiServer) handleLeads(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r, store.DefaultListLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	leads, err := s.store.ListByScore(r.Context(), limit)
	if err != nil {
		zap.L().Error("leads: list failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list leads")
		return
	}
	if leads == nil {
		leads = []model.Lead{}
	}
	writeJSON(w, http.StatusOK, leads)
}

func (s *apiServer) handleExport(w http.ResponseWriter, r *http.Request) {
	leads, err := s.store.ListAll(r.Context())
	if err != nil {
		zap.L().Error("export: list failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list leads")
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="contacts_export.csv"`)
	if err := leadio.ExportCSV(w, leads); err != nil {
		zap.L().Error("export: write failed", zap.Error(err))
	}
}

func (s *apiServer) handleSuppress(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.store.Suppress(r.Context(), req.Email); err != nil {
		if model.IsConfigurationError(err) {
			writeError(w, http.StatusBadRequest, "enter a valid email")
			return
		}
		zap.L().Error("suppress: write failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to suppress")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "suppressed"})
}

func (s *apiServer) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r, 20)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	runs, err := s.store.ListRuns(r.Context(), limit)
	if err != nil {
		zap.L().Error("runs: list failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	if runs == nil {
		runs = []model.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

// handleStartRun starts an ingestion run in the background. Only one run
// may be active at a time.
func (s *apiServer) handleStartRun(w http.ResponseWriter, r *http.Request) {
	if s.runner == nil {
		writeError(w, http.StatusServiceUnavailable, "ingestion not configured")
		return
	}

	var req struct {
		Queries []string `json:"queries"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	queries, _ := resolveQueries(req.Queries, "", s.defaults)
	if len(queries) == 0 {
		writeError(w, http.StatusBadRequest, "queries are required")
		return
	}

	if !s.running.CompareAndSwap(false, true) {
		writeError(w, http.StatusConflict, "an ingestion run is already in progress")
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.running.Store(false)

		result, err := s.runner.Run(s.ctx, queries)
		if err != nil {
			zap.L().Error("api ingestion failed", zap.Error(err))
			return
		}
		zap.L().Info("api ingestion complete", zap.Int("inserted", result.Inserted))
	}()

	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":  "accepted",
		"queries": queries,
	})
}

// handleStartCampaign materializes the recipient list and sends the
// campaign in the background. Only one campaign may be sending at a time.
func (s *apiServer) handleStartCampaign(w http.ResponseWriter, r *http.Request) {
	if s.campaigns == nil {
		writeError(w, http.StatusServiceUnavailable, "campaigns not configured")
		return
	}

	var req struct {
		Subject string `json:"subject"`
		HTML    string `json:"html"`
		Cap     int    `json:"cap"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	dailyCap, err := resolveCap(req.Cap, s.dailyCap)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	subject, body := s.content(req.Subject, req.HTML)

	if !s.sending.CompareAndSwap(false, true) {
		writeError(w, http.StatusConflict, "a campaign is already sending")
		return
	}

	candidates, err := campaign.LoadCandidates(r.Context(), s.store)
	if err != nil {
		s.sending.Store(false)
		zap.L().Error("campaign: load candidates failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load recipients")
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.sending.Store(false)

		rep, err := s.campaigns.Run(s.ctx, campaign.Campaign{
			Subject:    subject,
			HTML:       body,
			Candidates: candidates,
			DailyCap:   dailyCap,
		})
		fields := []zap.Field{
			zap.Int("sent", rep.Sent),
			zap.Int("failed", rep.Failed),
			zap.Int("suppressed", rep.Suppressed),
			zap.Int("skipped", rep.Skipped),
		}
		if err != nil {
			zap.L().Error("api campaign stopped", append(fields, zap.Error(err))...)
			return
		}
		zap.L().Info("api campaign complete", fields...)
	}()

	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":     "accepted",
		"candidates": len(candidates),
		"cap":        dailyCap,
	})
}

func (s *apiServer) handlePreviewCampaign(w http.ResponseWriter, r *http.Request) {
	if s.campaigns == nil {
		writeError(w, http.StatusServiceUnavailable, "campaigns not configured")
		return
	}

	var req struct {
		To      string `json:"to"`
		Subject string `json:"subject"`
		HTML    string `json:"html"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	subject, body := s.content(req.Subject, req.HTML)

	status, err := s.campaigns.Preview(r.Context(), subject, body, req.To)
	if err != nil {
		var ie *model.InputError
		switch {
		case errors.As(err, &ie):
			writeError(w, http.StatusBadRequest, ie.Error())
		case model.IsConfigurationError(err):
			writeError(w, http.StatusServiceUnavailable, "email transport not configured")
		default:
			zap.L().Warn("campaign: preview failed", zap.String("to", req.To), zap.Error(err))
			writeError(w, http.StatusBadGateway, "preview send failed")
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "sent", "code": status})
}

func (s *apiServer) content(subject, body string) (string, string) {
	if subject == "" {
		subject = s.subject
	}
	if body == "" {
		body = s.body
	}
	return subject, body
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
