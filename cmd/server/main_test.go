package main

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"kasir-be/internal/config"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	return &config.Config{
		AppPort:         "8080",
		AppEnv:          "test",
		TaxRate:         decimal.RequireFromString("0.10"),
		OrderCodePrefix: "TRX",
		MidtransBaseURL: "http://127.0.0.1:0",
		GatewayTimeout:  time.Second,
		JWTSecret:       "secret",
		MetricsPrefix:   "kasir",
	}
}

func TestNewServer(t *testing.T) {
	// mock driver so we don't need a real Postgres connection
	db, err := sql.Open("mock_driver_main", "")
	require.NoError(t, err)

	router, cleanup := newServer(context.Background(), testConfig(), db)
	defer cleanup()
	require.NotNil(t, router)

	t.Run("Health Check", func(t *testing.T) {
		req, _ := http.NewRequest("GET", "/health", nil)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Body.String(), "ok")
	})

	t.Run("Metrics", func(t *testing.T) {
		req, _ := http.NewRequest("GET", "/metrics", nil)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Body.String(), "go_goroutines")
	})

	t.Run("Orders Require Auth", func(t *testing.T) {
		req, _ := http.NewRequest("GET", "/api/orders", nil)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("Payment Webhook Wired", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/webhook/payment", nil)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		// empty body is rejected by the webhook handler, not by the router
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestNewServer_TwiceDoesNotPanic(t *testing.T) {
	db, err := sql.Open("mock_driver_main", "")
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		_, c1 := newServer(context.Background(), testConfig(), db)
		_, c2 := newServer(context.Background(), testConfig(), db)
		c1()
		c2()
	})
}

// --- Mock Driver for Testing ---
type mockDriver struct{}

func (m *mockDriver) Open(name string) (driver.Conn, error)         { return &mockConn{}, nil }
func (c *mockConn) Prepare(query string) (driver.Stmt, error)       { return &mockStmt{}, nil }
func (c *mockConn) Close() error                                    { return nil }
func (c *mockConn) Begin() (driver.Tx, error)                       { return nil, nil }
func (s *mockStmt) Close() error                                    { return nil }
func (s *mockStmt) NumInput() int                                   { return 0 }
func (s *mockStmt) Exec(args []driver.Value) (driver.Result, error) { return nil, nil }
func (s *mockStmt) Query(args []driver.Value) (driver.Rows, error)  { return nil, nil }

type mockConn struct{}
type mockStmt struct{}

func init() {
	sql.Register("mock_driver_main", &mockDriver{})
}

func TestRun(t *testing.T) {
	origInitDB := initDBFunc
	defer func() { initDBFunc = origInitDB }()
	initDBFunc = func(cfg *config.Config) *sql.DB {
		db, _ := sql.Open("mock_driver_main", "")
		return db
	}

	origStartServer := startServerFunc
	defer func() { startServerFunc = origStartServer }()
	var gotAddr string
	startServerFunc = func(ctx context.Context, addr string, handler http.Handler) error {
		gotAddr = addr
		return nil
	}

	t.Setenv("APP_PORT", "8080")
	t.Setenv("APP_ENV", "test")
	t.Setenv("DB_HOST", "localhost")
	t.Setenv("DB_PORT", "5432")
	t.Setenv("DB_USER", "user")
	t.Setenv("DB_PASSWORD", "pass")
	t.Setenv("DB_NAME", "db")
	t.Setenv("KAFKA_BROKERS", "")
	t.Setenv("REDIS_ADDR", "")

	assert.NoError(t, run())
	assert.Equal(t, ":8080", gotAddr)
}

func TestStartServer_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := startServer(ctx, "127.0.0.1:0", http.NotFoundHandler())
	assert.NoError(t, err)
}
