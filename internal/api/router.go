package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/Harshitk-cp/protomind/internal/api/handlers"
	mw "github.com/Harshitk-cp/protomind/internal/api/middleware"
	"github.com/Harshitk-cp/protomind/internal/buildconfig"
	"github.com/Harshitk-cp/protomind/internal/domain"
	"github.com/Harshitk-cp/protomind/internal/service"
	"github.com/Harshitk-cp/protomind/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Options carries the settings the HTTP layer and its services need.
type Options struct {
	// APIKey guards /v1 when non-empty.
	APIKey            string
	RateLimitRPS      float64
	RateLimitBurst    int
	SearchDefaultTopK int
	Scoring           service.ScoringPolicy
	Hebbian           service.HebbianConfig
}

// App holds the router and the services behind it.
type App struct {
	Router     *chi.Mux
	Prototypes *service.PrototypeService
	Graph      *service.GraphService
	ORM        *service.ORM
	Semantic   *service.SemanticService
	Assertions *service.AssertionService
	Hebbian    *service.HebbianGraph
	Decay      *service.DecayScheduler
	Registry   *prometheus.Registry
	startTime  time.Time
}

func NewApp(backend *store.Backend, embedder domain.EmbeddingClient, opts Options, logger *zap.Logger) *App {
	// Services
	protoSvc := service.NewPrototypeService(backend.Graph, embedder, logger)
	graphSvc := service.NewGraphService(backend.Graph, logger)
	ormSvc := service.NewORM(backend.Graph, protoSvc, service.NewSchemaRegistry(), logger)
	semanticSvc := service.NewSemanticService(backend.Graph, embedder, logger)
	semanticSvc.SetDefaultTopK(opts.SearchDefaultTopK)
	assertionSvc := service.NewAssertionService(backend.Assertions, opts.Scoring, logger)
	hebbian := service.NewHebbianGraph(backend.Graph, opts.Hebbian, logger)

	// Handlers
	prototypeHandler := handlers.NewPrototypeHandler(protoSvc, logger)
	conceptHandler := handlers.NewConceptHandler(protoSvc, semanticSvc, logger)
	graphHandler := handlers.NewGraphHandler(graphSvc, semanticSvc, logger)
	ormHandler := handlers.NewORMHandler(ormSvc, logger)
	assertionHandler := handlers.NewAssertionHandler(assertionSvc, logger)
	linkHandler := handlers.NewLinkHandler(hebbian, logger)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := mw.NewMetrics(reg)

	r := chi.NewRouter()
	app := &App{
		Router:     r,
		Prototypes: protoSvc,
		Graph:      graphSvc,
		ORM:        ormSvc,
		Semantic:   semanticSvc,
		Assertions: assertionSvc,
		Hebbian:    hebbian,
		Decay:      service.NewDecayScheduler(hebbian, logger),
		Registry:   reg,
		startTime:  time.Now(),
	}

	// Global middleware (order matters)
	r.Use(mw.RequestID)
	r.Use(middleware.RealIP)
	r.Use(metrics.Middleware)
	r.Use(mw.Logging(logger))
	r.Use(middleware.Recoverer)
	if opts.RateLimitRPS > 0 {
		r.Use(mw.RateLimit(opts.RateLimitRPS, opts.RateLimitBurst))
	}

	// Health and metrics (no auth)
	r.Get("/health", app.healthHandler(backend))
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	r.Route("/v1", func(r chi.Router) {
		if opts.APIKey != "" {
			r.Use(mw.APIKeyAuth(opts.APIKey))
		}

		// Prototypes
		r.Route("/prototypes", func(r chi.Router) {
			r.Post("/", prototypeHandler.Create)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", prototypeHandler.GetByID)
				r.Post("/parents", prototypeHandler.AddParent)
			})
		})

		// Concepts
		r.Route("/concepts", func(r chi.Router) {
			r.Get("/search", conceptHandler.Search)
			r.Post("/", conceptHandler.Create)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", conceptHandler.GetByID)
				r.Get("/history", conceptHandler.History)
			})
		})

		// Associations and documents
		r.Post("/associations", graphHandler.CreateAssociation)
		r.Route("/nodes/{id}", func(r chi.Router) {
			r.Get("/associations", graphHandler.GetAssociations)
			r.Post("/embedding", graphHandler.RecomputeEmbedding)
			r.Get("/links", linkHandler.Strongest)
		})
		r.Post("/documents", graphHandler.CreateDocument)

		// ORM
		r.Route("/orm", func(r chi.Router) {
			r.Post("/prototypes", ormHandler.RegisterPrototype)
			r.Route("/{prototype}", func(r chi.Router) {
				r.Post("/", ormHandler.Create)
				r.Get("/find", ormHandler.Find)
				r.Post("/find", ormHandler.FindOne)
				r.Get("/{id}", ormHandler.Get)
				r.Patch("/{id}", ormHandler.Update)
			})
		})

		// Assertions
		r.Route("/assertions", func(r chi.Router) {
			r.Post("/", assertionHandler.Create)
			r.Get("/", assertionHandler.List)
			r.Get("/{id}", assertionHandler.GetByID)
		})
		r.Route("/subjects/{subject}", func(r chi.Router) {
			r.Get("/snapshot", assertionHandler.Snapshot)
			r.Get("/evidence", assertionHandler.Evidence)
		})

		// Reinforcement links
		r.Route("/links", func(r chi.Router) {
			r.Post("/", linkHandler.Link)
			r.Post("/access", linkHandler.Access)
			r.Post("/decay", linkHandler.Decay)
		})
	})

	return app
}

func (app *App) healthHandler(backend *store.Backend) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]any{
			"backend":        backend.Name,
			"version":        buildconfig.Version(),
			"commit":         buildconfig.Commit(),
			"uptime_seconds": time.Since(app.startTime).Seconds(),
		}
		status := http.StatusOK
		if err := backend.Ping(r.Context()); err != nil {
			status = http.StatusServiceUnavailable
			resp["status"] = "error"
			resp["error"] = "backend unavailable"
		} else {
			resp["status"] = "ok"
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(resp)
	}
}
