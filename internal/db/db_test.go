package db

import (
	"database/sql"
	"database/sql/driver"
	"errors"
	"os"
	"os/exec"
	"testing"

	"kasir-be/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildDSN(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.Config
		want string
	}{
		{
			name: "plain values",
			cfg: config.Config{
				DBHost: "localhost", DBUser: "kasir", DBPassword: "secret", DBName: "kasir", DBPort: "5432",
			},
			want: "host=localhost user=kasir password=secret dbname=kasir port=5432 sslmode=disable",
		},
		{
			name: "password with space and quote",
			cfg: config.Config{
				DBHost: "db", DBUser: "kasir", DBPassword: "it's a pw", DBName: "pos", DBPort: "5433",
			},
			want: `host=db user=kasir password='it\'s a pw' dbname=pos port=5433 sslmode=disable`,
		},
		{
			name: "empty password",
			cfg:  config.Config{DBHost: "db", DBUser: "kasir", DBName: "pos", DBPort: "5432"},
			want: "host=db user=kasir password='' dbname=pos port=5432 sslmode=disable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, buildDSN(&tt.cfg))
		})
	}
}

func TestNewDatabase_UnknownDriver(t *testing.T) {
	db, err := newDatabaseWithDriver(&config.Config{}, "no_such_driver")

	assert.Nil(t, db)
	assert.ErrorContains(t, err, "failed to connect to DB")
}

func TestNewDatabase_PingFailure(t *testing.T) {
	db, err := newDatabaseWithDriver(&config.Config{DBHost: "db"}, "kasir_failing_driver")

	assert.Nil(t, db)
	assert.ErrorContains(t, err, "failed to ping DB")
}

func TestNewDatabase_Success(t *testing.T) {
	db, err := newDatabaseWithDriver(&config.Config{DBHost: "db"}, "kasir_ok_driver")
	require.NoError(t, err)
	defer db.Close()

	assert.Equal(t, maxOpenConns, db.Stats().MaxOpenConnections)
}

func TestInitDB_ExitsOnFailure(t *testing.T) {
	// InitDB terminates the process, so it runs in a child test binary.
	if os.Getenv("KASIR_INITDB_CHILD") == "1" {
		InitDB(&config.Config{DBHost: "127.0.0.1", DBPort: "1", DBName: "none"})
		return
	}

	cmd := exec.Command(os.Args[0], "-test.run=TestInitDB_ExitsOnFailure")
	cmd.Env = append(os.Environ(), "KASIR_INITDB_CHILD=1")
	err := cmd.Run()

	var exitErr *exec.ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.False(t, exitErr.Success())
}

// --- fake drivers ---

type fakeDriver struct{ openErr error }

func (d *fakeDriver) Open(string) (driver.Conn, error) {
	if d.openErr != nil {
		return nil, d.openErr
	}
	return &fakeConn{}, nil
}

type fakeConn struct{}

func (c *fakeConn) Prepare(string) (driver.Stmt, error) { return nil, errors.New("not supported") }
func (c *fakeConn) Close() error                        { return nil }
func (c *fakeConn) Begin() (driver.Tx, error)           { return nil, errors.New("not supported") }

func init() {
	sql.Register("kasir_ok_driver", &fakeDriver{})
	sql.Register("kasir_failing_driver", &fakeDriver{openErr: errors.New("connection refused")})
}
