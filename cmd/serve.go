package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/prospect-cli/internal/config"
	"github.com/sells-group/prospect-cli/internal/model"
	"github.com/sells-group/prospect-cli/internal/monitoring"
	"github.com/sells-group/prospect-cli/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the campaign API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}
		cfg.Server.Port = port

		env, err := initEnv(ctx, cfg, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		collector := env.Collector()
		srv := &http.Server{
			Addr: fmt.Sprintf(":%d", port),
			Handler: newAPI(env.Controller, env.Store, collector, apiConfig{
				Defaults:       cfg.Campaign,
				LookbackHours:  cfg.Monitoring.LookbackWindowHours,
				AllowedOrigins: cfg.Server.AllowedOrigins,
			}).routes(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		checker := monitoring.NewChecker(collector, monitoring.NewAlerter(cfg.Monitoring), env.Gateway.Cache(), cfg.Monitoring)

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			checker.Run(gctx)
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), 30*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
		g.Go(func() error {
			zap.L().Info("starting server", zap.Int("port", port))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				stop()
				return eris.Wrap(err, "server listen")
			}
			return nil
		})
		return g.Wait()
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// campaignRunner runs one campaign to completion.
type campaignRunner interface {
	Run(ctx context.Context, req model.CampaignRequest) *model.CampaignResult
}

// campaignReader reads persisted campaigns.
type campaignReader interface {
	GetCampaign(ctx context.Context, id string) (*model.CampaignSummary, error)
	ListCampaigns(ctx context.Context, filter store.CampaignFilter) ([]model.CampaignSummary, error)
	ListLeads(ctx context.Context, campaignID string) ([]*model.QualifiedLead, error)
}

// snapshotter produces monitoring snapshots.
type snapshotter interface {
	Collect(ctx context.Context, lookbackHours int) (*monitoring.Snapshot, error)
}

type apiConfig struct {
	Defaults       config.CampaignConfig
	LookbackHours  int
	AllowedOrigins []string
}

// api serves the campaign HTTP endpoints.
type api struct {
	runner    campaignRunner
	campaigns campaignReader
	metrics   snapshotter
	cfg       apiConfig
}

func newAPI(runner campaignRunner, campaigns campaignReader, metrics snapshotter, cfg apiConfig) *api {
	return &api{runner: runner, campaigns: campaigns, metrics: metrics, cfg: cfg}
}

func (a *api) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	if len(a.cfg.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: a.cfg.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}))
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/status", a.handleStatus)
	r.Route("/campaigns", func(r chi.Router) {
		r.Post("/", a.handleRunCampaign)
		r.Get("/", a.handleListCampaigns)
		r.Get("/{id}", a.handleGetCampaign)
	})
	return r
}

// handleRunCampaign runs a campaign synchronously. A client disconnect
// cancels the campaign; the partial result is still persisted.
func (a *api) handleRunCampaign(w http.ResponseWriter, r *http.Request) {
	var in campaignInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req, err := in.request(a.cfg.Defaults)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res := a.runner.Run(r.Context(), req)
	zap.L().Info("api: campaign finished",
		zap.String("campaign_id", res.ID),
		zap.String("status", string(res.Status)),
		zap.Int("leads", len(res.Leads)),
	)
	writeJSON(w, http.StatusOK, res)
}

func (a *api) handleListCampaigns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.CampaignFilter{
		Status:       model.CampaignStatus(q.Get("status")),
		BusinessType: q.Get("business_type"),
		Location:     q.Get("location"),
	}
	var err error
	if filter.Limit, err = queryInt(q.Get("limit")); err != nil {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	if filter.Offset, err = queryInt(q.Get("offset")); err != nil {
		writeError(w, http.StatusBadRequest, "invalid offset")
		return
	}

	list, err := a.campaigns.ListCampaigns(r.Context(), filter)
	if err != nil {
		zap.L().Error("api: list campaigns", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "list campaigns failed")
		return
	}
	if list == nil {
		list = []model.CampaignSummary{}
	}
	writeJSON(w, http.StatusOK, list)
}

type campaignDetail struct {
	model.CampaignSummary
	Leads []*model.QualifiedLead `json:"leads"`
}

func (a *api) handleGetCampaign(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	summary, err := a.campaigns.GetCampaign(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "campaign not found")
		return
	}
	if err != nil {
		zap.L().Error("api: get campaign", zap.String("campaign_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "get campaign failed")
		return
	}

	leads, err := a.campaigns.ListLeads(r.Context(), id)
	if err != nil {
		zap.L().Error("api: list leads", zap.String("campaign_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "list leads failed")
		return
	}
	if leads == nil {
		leads = []*model.QualifiedLead{}
	}
	writeJSON(w, http.StatusOK, campaignDetail{CampaignSummary: *summary, Leads: leads})
}

func (a *api) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap, err := a.metrics.Collect(r.Context(), a.cfg.LookbackHours)
	if err != nil {
		zap.L().Error("api: collect status", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "collect status failed")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func queryInt(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, eris.Errorf("invalid integer %q", s)
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
