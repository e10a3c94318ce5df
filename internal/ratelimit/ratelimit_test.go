package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Shivanand-hulikatti/slot-registration/internal/identity"
	"github.com/stretchr/testify/assert"
)

func TestStore_ReusesAndCleansUp(t *testing.T) {
	s := NewStore(1, 1, time.Minute)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	a := s.Limiter("a")
	assert.Same(t, a, s.Limiter("a"))
	s.Limiter("b")
	assert.Equal(t, 2, s.Len())

	now = now.Add(30 * time.Second)
	s.Limiter("b")
	now = now.Add(45 * time.Second)
	s.Cleanup()
	assert.Equal(t, 1, s.Len(), "a idle past TTL, b seen recently")
}

func TestClientKey(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/videos", nil)
	r.RemoteAddr = "10.0.0.7:5555"
	assert.Equal(t, "ip:10.0.0.7", ClientKey(r))

	r = r.WithContext(identity.WithIdentity(r.Context(), identity.Identity{AuthorXid: "Alice"}))
	assert.Equal(t, "xid:alice", ClientKey(r))
}

func TestMiddleware_RejectsOverBurst(t *testing.T) {
	store := NewStore(0.001, 2, time.Minute)
	h := Middleware(store)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	send := func(addr string) *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodPost, "/videos", nil)
		r.RemoteAddr = addr
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, r)
		return rec
	}

	assert.Equal(t, http.StatusCreated, send("1.1.1.1:1").Code)
	assert.Equal(t, http.StatusCreated, send("1.1.1.1:2").Code)
	rec := send("1.1.1.1:3")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"error":"too many requests"}`, rec.Body.String())

	assert.Equal(t, http.StatusCreated, send("2.2.2.2:1").Code)
}
