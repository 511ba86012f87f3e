package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/aalabel/aalabel-cli/internal/catalog"
	"github.com/aalabel/aalabel-cli/internal/generation"
	"github.com/aalabel/aalabel-cli/internal/harmonize"
	"github.com/aalabel/aalabel-cli/internal/model"
	"github.com/aalabel/aalabel-cli/internal/resilience"
	"github.com/aalabel/aalabel-cli/internal/retrieval"
)

var servePort int

// labelService is the orchestration surface exposed over HTTP.
type labelService interface {
	Sections(ctx context.Context, codes []string) ([]model.SectionDefinition, error)
	HarmonizeLabel(ctx context.Context, product string, jurisdictions, sections []string) (*model.HarmonizedLabel, error)
}

// serverDeps are the handlers' collaborators.
type serverDeps struct {
	Labels    labelService
	Retriever harmonize.Retriever
	Params    harmonize.Params
	Origins   []string
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the harmonization HTTP API",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if servePort > 0 {
			cfg.Server.Port = servePort
		}

		env, err := openEngine(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		srv := &http.Server{
			Addr: fmt.Sprintf(":%d", cfg.Server.Port),
			Handler: buildRouter(serverDeps{
				Labels:    env.Orchestrator,
				Retriever: env.Retriever,
				Params:    env.Params,
				Origins:   cfg.Server.CORSOrigins,
			}),
			ReadHeaderTimeout: 10 * time.Second,
		}

		if cfg.Monitoring.Enabled {
			go newChecker(env.Store).Run(ctx)
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// buildRouter wires the HTTP API.
func buildRouter(d serverDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	origins := d.Origins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Get("/sections", d.handleSections)
		r.Post("/retrieve", d.handleRetrieve)
		r.Post("/labels", d.handleLabel)
	})
	return r
}

func (d serverDeps) handleSections(w http.ResponseWriter, r *http.Request) {
	defs, err := d.Labels.Sections(r.Context(), catalog.SplitCodes(r.URL.Query().Get("codes")))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sections": defs})
}

type retrieveRequest struct {
	Query         string   `json:"query"`
	Jurisdictions []string `json:"jurisdictions"`
	TopK          int      `json:"top_k"`
	Threshold     *float64 `json:"threshold"`
}

func (d serverDeps) handleRetrieve(w http.ResponseWriter, r *http.Request) {
	var req retrieveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Query == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "query is required"})
		return
	}
	p := d.Params
	if req.TopK > 0 {
		p.TopK = req.TopK
	}
	if req.Threshold != nil {
		p.Threshold = *req.Threshold
	}
	if err := p.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	ev, err := d.Retriever.Retrieve(r.Context(), retrieval.NormalizeText(req.Query),
		harmonize.NormalizeJurisdictions(req.Jurisdictions), p.TopK, p.Threshold)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"evidence": ev, "model": d.Retriever.Model()})
}

type labelRequest struct {
	Product       string   `json:"product"`
	Jurisdictions []string `json:"jurisdictions"`
	Sections      []string `json:"sections"`
}

func (d serverDeps) handleLabel(w http.ResponseWriter, r *http.Request) {
	var req labelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Product == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "product is required"})
		return
	}

	label, err := d.Labels.HarmonizeLabel(r.Context(), req.Product, req.Jurisdictions, req.Sections)
	if err != nil {
		zap.L().Error("label harmonization failed",
			zap.String("product", req.Product),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err),
		)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, label)
}

// statusFor maps engine errors to HTTP status codes.
func statusFor(err error) int {
	var (
		timeout     *resilience.BackendTimeoutError
		unavailable *resilience.BackendUnavailableError
		malformed   *generation.MalformedGenerationError
		mismatch    *retrieval.ModelMismatchError
		unknown     *catalog.UnknownSectionsError
	)
	switch {
	case errors.As(err, &timeout), errors.As(err, &unavailable):
		return http.StatusBadGateway
	case errors.As(err, &malformed), errors.As(err, &mismatch):
		return http.StatusUnprocessableEntity
	case errors.As(err, &unknown), errors.Is(err, harmonize.ErrNoJurisdictions):
		return http.StatusBadRequest
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

type errorBody struct {
	Error   string `json:"error"`
	Section string `json:"section,omitempty"`
	Stage   string `json:"stage,omitempty"`
}

func writeError(w http.ResponseWriter, err error) {
	body := errorBody{Error: err.Error()}
	var se *harmonize.StageError
	if errors.As(err, &se) {
		body.Section = se.Section
		body.Stage = string(se.Stage)
	}
	writeJSON(w, statusFor(err), body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
