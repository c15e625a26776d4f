package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"github.com/warp/parking-engine/engine"
	"github.com/warp/parking-engine/store/sqlite"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, time.March, 10, 14, 30, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testEnv struct {
	handler *Handler
	store   *sqlite.Store
	clock   *testClock
	router  *chi.Mux
}

func setupTestHandler(t *testing.T, opts ...engine.WorkflowOption) *testEnv {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	clock := newTestClock()
	opts = append([]engine.WorkflowOption{engine.WithClock(clock.Now)}, opts...)
	handler := NewHandler(engine.NewService(store, opts...), store)

	return &testEnv{
		handler: handler,
		store:   store,
		clock:   clock,
		router:  NewRouter(handler, RouterOptions{}),
	}
}

type testEnvelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

// do sends a request through the router and decodes the envelope.
func (e *testEnv) do(t *testing.T, method, path string, body any) (int, testEnvelope) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)

	var env testEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec.Code, env
}

// decodeData unmarshals the envelope data into dst.
func decodeData(t *testing.T, env testEnvelope, dst any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(env.Data, dst), string(env.Data))
}

func (e *testEnv) createSlot(t *testing.T, number string, price float64) SlotDTO {
	t.Helper()
	status, env := e.do(t, http.MethodPost, "/api/slots", map[string]any{
		"number": number, "floor": 1, "zone": "A", "type": "regular", "price_per_hour": price,
	})
	require.Equal(t, http.StatusCreated, status, env.Message)
	var slot SlotDTO
	decodeData(t, env, &slot)
	return slot
}

func (e *testEnv) createUser(t *testing.T, username string, balance float64) UserDTO {
	t.Helper()
	status, env := e.do(t, http.MethodPost, "/api/users", map[string]any{
		"username": username, "email": username + "@example.com", "initial_balance": balance,
	})
	require.Equal(t, http.StatusCreated, status, env.Message)
	var user UserDTO
	decodeData(t, env, &user)
	return user
}

func (e *testEnv) reserve(t *testing.T, userID, slotID string, hours float64) (int, testEnvelope) {
	t.Helper()
	return e.do(t, http.MethodPost, "/api/reservations", map[string]any{
		"user_id": userID, "slot_id": slotID, "duration": hours,
	})
}
