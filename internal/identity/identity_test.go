package identity

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanActFor(t *testing.T) {
	user := Identity{AuthorXid: "Alice", ApprovedXids: []string{"BobCat"}, Role: RoleUser}

	assert.True(t, user.CanActFor("alice"))
	assert.True(t, user.CanActFor("ALICE"))
	assert.True(t, user.CanActFor("bobcat"))
	assert.False(t, user.CanActFor("carol"))
	assert.False(t, user.CanActFor(""))

	admin := Identity{Role: RoleAdmin}
	assert.True(t, admin.CanActFor("anyone"))
}

func TestVerifier_RoundTrip(t *testing.T) {
	v := NewVerifier("secret", "slots")
	token, err := v.Sign(Identity{AuthorXid: "alice", ApprovedXids: []string{"bob"}, Role: RoleUser}, time.Hour)
	require.NoError(t, err)

	id, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", id.AuthorXid)
	assert.Equal(t, []string{"bob"}, id.ApprovedXids)
	assert.False(t, id.IsAdmin())
}

func TestVerifier_Rejects(t *testing.T) {
	v := NewVerifier("secret", "slots")

	other, err := NewVerifier("other-secret", "slots").Sign(Identity{AuthorXid: "a"}, time.Hour)
	require.NoError(t, err)
	_, err = v.Verify(other)
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired, err := v.Sign(Identity{AuthorXid: "a"}, -time.Minute)
	require.NoError(t, err)
	_, err = v.Verify(expired)
	assert.ErrorIs(t, err, ErrInvalidToken)

	wrongIssuer, err := NewVerifier("secret", "elsewhere").Sign(Identity{AuthorXid: "a"}, time.Hour)
	require.NoError(t, err)
	_, err = v.Verify(wrongIssuer)
	assert.ErrorIs(t, err, ErrInvalidToken)

	noXid, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Role:             RoleUser,
		RegisteredClaims: jwt.RegisteredClaims{Issuer: "slots"},
	}).SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = v.Verify(noXid)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestMiddleware(t *testing.T) {
	v := NewVerifier("secret", "")
	var seen *Identity
	h := Middleware(v)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id, ok := FromContext(r.Context()); ok {
			seen = &id
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	t.Run("anonymous passes through", func(t *testing.T) {
		seen = nil
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Nil(t, seen)
	})

	t.Run("valid token attaches identity", func(t *testing.T) {
		seen = nil
		token, err := v.Sign(Identity{AuthorXid: "alice"}, time.Hour)
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		require.NotNil(t, seen)
		assert.Equal(t, "alice", seen.AuthorXid)
		assert.Equal(t, RoleUser, seen.Role)
	})

	t.Run("garbage token is 401", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer nope")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestRequireAdmin(t *testing.T) {
	h := RequireAdmin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(WithIdentity(req.Context(), Identity{AuthorXid: "a", Role: RoleUser}))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req = req.WithContext(WithIdentity(req.Context(), Identity{Role: RoleAdmin}))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
