package dashboard

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kmaguire/ironfly/internal/criteria"
	"github.com/kmaguire/ironfly/internal/models"
	"github.com/kmaguire/ironfly/internal/queue"
	"github.com/kmaguire/ironfly/internal/storage"
)

func newTestServer(t *testing.T) (*Server, storage.Interface, *queue.Queue) {
	t.Helper()
	st := storage.NewMemoryStore()
	q := queue.New(st, "trading-queue")
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	s := NewServer(Config{
		Addr:         "127.0.0.1:0",
		StrategyName: "premium",
		AccountID:    "test",
	}, st, q, logger)
	return s, st, q
}

func get(t *testing.T, s *Server, path string, out interface{}) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if out != nil {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
	}
	return rec
}

func TestHealthz(t *testing.T) {
	s, _, _ := newTestServer(t)
	var body map[string]interface{}
	rec := get(t, s, "/healthz", &body)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", body["status"])
}

func TestPositionsEndpoint(t *testing.T) {
	s, st, _ := newTestServer(t)

	pos := &models.Position{
		ID:       "abc-123",
		Symbol:   "MU",
		Strategy: "credit_spread",
		Quantity: 77,
		Price:    0.61,
		Expires:  "2019-06-21",
		OpenedAt: time.Date(2019, 5, 20, 10, 0, 0, 0, time.UTC),
	}
	require.NoError(t, st.LPush("premium:positions", pos.ID))
	require.NoError(t, st.HSet("premium:"+pos.ID, pos.Fields()))
	// a dangling id with no hash is skipped
	require.NoError(t, st.LPush("premium:positions", "gone"))

	var views []PositionView
	rec := get(t, s, "/api/positions", &views)
	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, views, 1)
	assert.Equal(t, "abc-123", views[0].ID)
	assert.Equal(t, "MU", views[0].Symbol)
	assert.Equal(t, 77, views[0].Quantity)
	assert.InDelta(t, 0.61, views[0].Price, 1e-9)
}

func TestQueueEndpoint(t *testing.T) {
	s, _, q := newTestServer(t)

	id, err := q.SendTrade(map[string]string{"symbol": "SPY", "direction": "neutral"},
		[]criteria.Criterion{{Expr: "price > 200"}}, nil)
	require.NoError(t, err)
	require.NoError(t, q.AddFailed("SPY-dead", "no quote"))
	require.NoError(t, q.Heartbeat(time.Date(2019, 5, 20, 10, 0, 0, 0, time.UTC)))
	require.NoError(t, q.SetCurrentUsage(2500, 10000))

	var view QueueView
	rec := get(t, s, "/api/queue", &view)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "trading-queue", view.Name)
	require.Len(t, view.Pending, 1)
	assert.Equal(t, id, view.Pending[0].ID)
	assert.Equal(t, "neutral", view.Pending[0].Data["direction"])
	assert.Equal(t, []string{"SPY-dead"}, view.Failed)
	assert.Equal(t, "no quote", view.Statuses["SPY-dead"])
	assert.NotZero(t, view.Heartbeat)
	assert.Equal(t, "2500.00/10000.00", view.Usage)
}

func TestBalanceHistoryEndpoint(t *testing.T) {
	s, st, _ := newTestServer(t)
	require.NoError(t, st.RPush("test:dates", "2019-05-20", "2019-05-21"))
	require.NoError(t, st.RPush("test:values", "100000.00", "100500.00"))

	var points []BalancePoint
	rec := get(t, s, "/api/balance-history", &points)
	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, points, 2)
	assert.Equal(t, "2019-05-20", points[0].Date)
	assert.Equal(t, "100500.00", points[1].Value)
}
