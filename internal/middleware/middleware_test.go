package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"kasir-be/internal/metrics"
	"kasir-be/internal/utils"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test-secret")

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSecret)
	require.NoError(t, err)
	return s
}

func ok() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuth(t *testing.T) {
	t.Run("Missing Token", func(t *testing.T) {
		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, ok := utils.ActorFromContext(r.Context())
			assert.False(t, ok, "Context should not contain an actor")
			w.WriteHeader(http.StatusOK)
		})

		req := httptest.NewRequest("GET", "/protected", nil)
		w := httptest.NewRecorder()

		AuthMiddleware(testSecret)(next).ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("Invalid Token", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/protected", nil)
		req.Header.Set("Authorization", "Bearer invalid-token")
		w := httptest.NewRecorder()

		AuthMiddleware(testSecret)(http.NotFoundHandler()).ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.JSONEq(t, `{"error":{"kind":"unauthorized","message":"invalid or expired token"}}`, w.Body.String())
	})

	t.Run("Valid Token", func(t *testing.T) {
		tokenString := signToken(t, jwt.MapClaims{
			"user_id": float64(1),
			"role":    "kasir",
			"exp":     time.Now().Add(time.Hour).Unix(),
		})

		req := httptest.NewRequest("GET", "/protected", nil)
		req.Header.Set("Authorization", "Bearer "+tokenString)
		w := httptest.NewRecorder()

		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := utils.ActorFromContext(r.Context())
			assert.True(t, ok)
			assert.Equal(t, int64(1), actor.UserID)
			assert.Equal(t, utils.RoleKasir, actor.Role)
			w.WriteHeader(http.StatusOK)
		})

		AuthMiddleware(testSecret)(next).ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("Expired Token", func(t *testing.T) {
		tokenString := signToken(t, jwt.MapClaims{
			"user_id": float64(1),
			"role":    "kasir",
			"exp":     time.Now().Add(-time.Hour).Unix(),
		})

		req := httptest.NewRequest("GET", "/protected", nil)
		req.Header.Set("Authorization", "Bearer "+tokenString)
		w := httptest.NewRecorder()

		AuthMiddleware(testSecret)(http.NotFoundHandler()).ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("Malformed Header", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/protected", nil)
		req.Header.Set("Authorization", "Basic user:pass")
		w := httptest.NewRecorder()

		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, ok := utils.ActorFromContext(r.Context())
			assert.False(t, ok)
			w.WriteHeader(http.StatusOK)
		})

		AuthMiddleware(testSecret)(next).ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestRequireRole(t *testing.T) {
	handler := RequireRole(utils.RoleAdmin)(ok())

	tests := []struct {
		name  string
		actor *utils.Actor
		want  int
	}{
		{"Anonymous", nil, http.StatusUnauthorized},
		{"WrongRole", &utils.Actor{UserID: 2, Role: utils.RoleKasir}, http.StatusForbidden},
		{"Allowed", &utils.Actor{UserID: 1, Role: utils.RoleAdmin}, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/api/orders/1/void", nil)
			if tt.actor != nil {
				req = req.WithContext(utils.WithActor(req.Context(), *tt.actor))
			}
			w := httptest.NewRecorder()

			handler.ServeHTTP(w, req)

			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestRateLimit(t *testing.T) {
	t.Run("Strict tier for webhook", func(t *testing.T) {
		var rejected []string
		l := NewRateLimiter("", func(tier string) { rejected = append(rejected, tier) })
		handler := l.Middleware(ok())

		codes := map[int]int{}
		for i := 0; i < burstStrict+3; i++ {
			req := httptest.NewRequest("POST", WebhookPath, nil)
			req.RemoteAddr = "10.0.0.1:5000"
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)
			codes[w.Code]++
		}

		assert.Equal(t, burstStrict, codes[http.StatusOK])
		assert.Equal(t, 3, codes[http.StatusTooManyRequests])
		assert.Equal(t, []string{"strict", "strict", "strict"}, rejected)
	})

	t.Run("Separate buckets per identity", func(t *testing.T) {
		l := NewRateLimiter("", nil)
		handler := l.Middleware(ok())

		for i := 0; i < burstGeneral; i++ {
			req := httptest.NewRequest("GET", "/api/orders", nil)
			req = req.WithContext(utils.WithActor(req.Context(), utils.Actor{UserID: 1, Role: utils.RoleKasir}))
			handler.ServeHTTP(httptest.NewRecorder(), req)
		}

		req := httptest.NewRequest("GET", "/api/orders", nil)
		req = req.WithContext(utils.WithActor(req.Context(), utils.Actor{UserID: 2, Role: utils.RoleKasir}))
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("Internal key", func(t *testing.T) {
		l := NewRateLimiter("svc-key", nil)
		req := httptest.NewRequest("GET", "/api/orders", nil)
		req.Header.Set("X-Service-Auth", "svc-key")

		_, burst, tier := l.resolveRateTier(req)
		assert.Equal(t, "internal", tier)
		assert.Equal(t, burstInternal, burst)
	})

	t.Run("Evicts idle visitors", func(t *testing.T) {
		l := NewRateLimiter("", nil)
		l.getVisitor("ip:1:general", limitGeneral, burstGeneral)

		l.evict(time.Now().Add(visitorTTL + time.Second))
		assert.Empty(t, l.visitors)
	})

	t.Run("Cleanup stops with context", func(t *testing.T) {
		l := NewRateLimiter("", nil)
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			l.Cleanup(ctx)
			close(done)
		}()
		cancel()

		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("cleanup did not stop")
		}
	})
}

func TestMetricsMiddleware(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry(), "test")

	r := chi.NewRouter()
	r.Use(MetricsMiddleware(m))
	r.Get("/api/orders/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/api/orders/42", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/api/orders/43", nil))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/api/orders/{id}", "404")))
}
