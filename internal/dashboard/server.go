// Package dashboard serves a read-only JSON view of the trading state:
// tracked positions, the trade queue, and the account balance history.
package dashboard

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/kmaguire/ironfly/internal/models"
	"github.com/kmaguire/ironfly/internal/queue"
	"github.com/kmaguire/ironfly/internal/storage"
)

type Config struct {
	Addr string
	// StrategyName prefixes the position keys to read.
	StrategyName string
	// AccountID keys the balance history series.
	AccountID string
}

type Server struct {
	router *chi.Mux
	server *http.Server
	store  storage.Interface
	q      *queue.Queue
	logger *logrus.Logger
	cfg    Config
}

// PositionView is the JSON shape of one tracked position.
type PositionView struct {
	ID         string  `json:"id"`
	Symbol     string  `json:"symbol"`
	Strategy   string  `json:"strategy"`
	Quantity   int     `json:"quantity"`
	Price      float64 `json:"price"`
	Expires    string  `json:"expires"`
	OpenedAt   int64   `json:"opened_at"`
	LastPrice  float64 `json:"last_price"`
	LastChange float64 `json:"last_change"`
}

// QueueView is the JSON shape of the trade queue.
type QueueView struct {
	Name      string            `json:"name"`
	Pending   []QueuedTrade     `json:"pending"`
	Failed    []string          `json:"failed"`
	Heartbeat int64             `json:"heartbeat,omitempty"`
	Usage     string            `json:"usage,omitempty"`
	Statuses  map[string]string `json:"statuses,omitempty"`
}

// QueuedTrade is one pending trade with its parameters.
type QueuedTrade struct {
	ID   string            `json:"id"`
	Data map[string]string `json:"data"`
}

// BalancePoint is one sample of the account balance series.
type BalancePoint struct {
	Date  string `json:"date"`
	Value string `json:"value"`
}

func NewServer(cfg Config, store storage.Interface, q *queue.Queue, logger *logrus.Logger) *Server {
	s := &Server{
		router: chi.NewRouter(),
		store:  store,
		q:      q,
		logger: logger,
		cfg:    cfg,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(30 * time.Second))

	s.router.Get("/healthz", s.handleHealth)
	s.router.Get("/api/positions", s.handlePositions)
	s.router.Get("/api/queue", s.handleQueue)
	s.router.Get("/api/balance-history", s.handleBalanceHistory)
}

// Handler exposes the route tree, primarily for tests.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Infof("Starting dashboard server on %s", s.cfg.Addr)
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithError(err).Error("Failed to encode response")
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
	})
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	ids := s.store.LRange(s.cfg.StrategyName+":positions", 0, -1)
	views := make([]PositionView, 0, len(ids))
	for _, id := range ids {
		fields, ok := s.store.HGetAll(s.cfg.StrategyName + ":" + id)
		if !ok {
			continue
		}
		pos := models.PositionFromFields(id, fields)
		views = append(views, PositionView{
			ID:         pos.ID,
			Symbol:     pos.Symbol,
			Strategy:   pos.Strategy,
			Quantity:   pos.Quantity,
			Price:      pos.Price,
			Expires:    pos.Expires,
			OpenedAt:   pos.OpenedAt.Unix(),
			LastPrice:  pos.LastPrice,
			LastChange: pos.LastChange,
		})
	}
	s.writeJSON(w, views)
}

func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	view := QueueView{
		Name:     s.q.Name(),
		Pending:  make([]QueuedTrade, 0),
		Failed:   s.q.Failed(),
		Statuses: make(map[string]string),
	}
	for _, id := range s.q.All() {
		data, _ := s.q.Data(id)
		view.Pending = append(view.Pending, QueuedTrade{ID: id, Data: data})
	}
	for _, id := range view.Failed {
		if status, ok := s.q.Status(id); ok {
			view.Statuses[id] = status
		}
	}
	if beat, ok := s.q.LastHeartbeat(); ok {
		view.Heartbeat = beat.Unix()
	}
	if usage, ok := s.q.CurrentUsage(); ok {
		view.Usage = usage
	}
	s.writeJSON(w, view)
}

func (s *Server) handleBalanceHistory(w http.ResponseWriter, r *http.Request) {
	dates := s.store.LRange(s.cfg.AccountID+":dates", 0, -1)
	values := s.store.LRange(s.cfg.AccountID+":values", 0, -1)
	n := len(dates)
	if len(values) < n {
		n = len(values)
	}
	points := make([]BalancePoint, 0, n)
	for i := 0; i < n; i++ {
		points = append(points, BalancePoint{Date: dates[i], Value: values[i]})
	}
	s.writeJSON(w, points)
}
