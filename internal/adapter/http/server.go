package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/storm-cmac-service/internal/adapter/catalog"
	"github.com/couchcryptid/storm-cmac-service/internal/domain"
)

const (
	defaultListLimit = 20
	maxListLimit     = 500
)

// ProductCatalog looks up recorded products.
type ProductCatalog interface {
	Get(ctx context.Context, id string) (domain.ProductEvent, error)
	List(ctx context.Context, site string, limit int) ([]domain.ProductEvent, error)
}

// Server exposes health, readiness, metrics and product catalog endpoints.
type Server struct {
	httpServer *http.Server
	catalog    ProductCatalog
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /healthz, /readyz and /metrics routes.
// When products is non-nil it also serves /products and /products/{id}.
func NewServer(addr string, ready sharedobs.ReadinessChecker, products ProductCatalog, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		catalog: products,
		logger:  logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(ready))
	mux.Handle("GET /metrics", promhttp.Handler())
	if products != nil {
		mux.HandleFunc("GET /products", s.handleList)
		mux.HandleFunc("GET /products/{id}", s.handleGet)
	}

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	site := r.URL.Query().Get("site")
	if site == "" {
		sharedobs.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "site is required"})
		return
	}
	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			sharedobs.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, maxListLimit)
	}

	products, err := s.catalog.List(r.Context(), site, limit)
	if err != nil {
		s.logger.Error("list products failed", "site", site, "error", err)
		sharedobs.WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": "catalog unavailable"})
		return
	}
	if products == nil {
		products = []domain.ProductEvent{}
	}
	sharedobs.WriteJSON(w, http.StatusOK, products)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	product, err := s.catalog.Get(r.Context(), id)
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		sharedobs.WriteJSON(w, http.StatusNotFound, map[string]string{"error": "product not found"})
	case err != nil:
		s.logger.Error("get product failed", "id", id, "error", err)
		sharedobs.WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": "catalog unavailable"})
	default:
		sharedobs.WriteJSON(w, http.StatusOK, product)
	}
}
