package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/username/fincoach/backend/src/security"
	"github.com/username/fincoach/backend/src/store"
)

func newUserTestServer(t *testing.T) (*httptest.Server, *security.AuthService) {
	t.Helper()

	authService := security.NewAuthService("test-secret-test-secret-test-secret", time.Hour)
	h := NewUserHandler(authService, store.NewMemoryStore())

	r := chi.NewRouter()
	r.Post("/auth/register", h.RegisterUserHandler)
	r.Post("/auth/login", h.LoginUserHandler)
	r.Group(func(r chi.Router) {
		r.Use(h.AuthMiddleware)
		r.Get("/me", func(w http.ResponseWriter, req *http.Request) {
			userID, _ := GetUserIDFromContext(req.Context())
			w.Write([]byte(strconv.FormatInt(userID, 10)))
		})
	})

	server := httptest.NewServer(r)
	t.Cleanup(server.Close)
	return server, authService
}

// Registration and login run entirely against the store, so the memory-store
// wiring works without any database connection.
func TestRegisterAndLoginAgainstMemoryStore(t *testing.T) {
	server, _ := newUserTestServer(t)

	resp := postJSON(t, server.URL+"/auth/register",
		`{"username":"ana","email":"ana@example.com","password":"secret1"}`)
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	t.Run("duplicate email rejected", func(t *testing.T) {
		resp := postJSON(t, server.URL+"/auth/register",
			`{"username":"other","email":"ana@example.com","password":"secret1"}`)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
	})

	t.Run("duplicate username rejected", func(t *testing.T) {
		resp := postJSON(t, server.URL+"/auth/register",
			`{"username":"ana","email":"ana2@example.com","password":"secret1"}`)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
	})

	t.Run("login returns a token", func(t *testing.T) {
		resp := postJSON(t, server.URL+"/auth/login",
			`{"email":"ana@example.com","password":"secret1"}`)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var body struct {
			Token string `json:"token"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.NotEmpty(t, body.Token)
	})

	t.Run("wrong password rejected", func(t *testing.T) {
		resp := postJSON(t, server.URL+"/auth/login",
			`{"email":"ana@example.com","password":"wrong-one"}`)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})
}

func TestAuthMiddlewareChecksAccountExists(t *testing.T) {
	server, authService := newUserTestServer(t)

	resp := postJSON(t, server.URL+"/auth/register",
		`{"username":"ana","email":"ana@example.com","password":"secret1"}`)
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	get := func(t *testing.T, token string) *http.Response {
		t.Helper()
		req, err := http.NewRequest(http.MethodGet, server.URL+"/me", nil)
		require.NoError(t, err)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		return resp
	}

	t.Run("token for a real account passes", func(t *testing.T) {
		token, err := authService.GenerateToken(1)
		require.NoError(t, err)
		resp := get(t, token)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("valid signature for a nonexistent account is rejected", func(t *testing.T) {
		token, err := authService.GenerateToken(999)
		require.NoError(t, err)
		resp := get(t, token)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("missing header rejected", func(t *testing.T) {
		resp := get(t, "")
		defer resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})
}
