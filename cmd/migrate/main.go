package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"kasir-be/internal/config"
	"kasir-be/internal/db"
	"kasir-be/internal/logger"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()
	logger.Init(os.Getenv("APP_ENV"))
	defer logger.Sync()
	log := logger.L()

	mode := flag.String("mode", "up", "migration mode: up or down")
	dir := flag.String("dir", "./migrations", "directory holding *.sql migrations")
	steps := flag.Int("steps", 1, "number of migrations to roll back in down mode")
	flag.Parse()

	database, err := openDB()
	if err != nil {
		log.Fatal("failed to connect db", zap.Error(err))
	}
	defer database.Close()

	m := &migrator{db: database, log: log}
	if err := m.run(*mode, *dir, *steps); err != nil {
		log.Fatal("migration failed", zap.Error(err))
	}
}

// openDB prefers DB_URL and falls back to the DB_* variables the server uses.
func openDB() (*sql.DB, error) {
	if url := os.Getenv("DB_URL"); url != "" {
		return sql.Open("postgres", url)
	}
	return db.NewDatabase(config.LoadConfig())
}

type migrator struct {
	db  *sql.DB
	log *zap.Logger
}

func (m *migrator) run(mode, dir string, steps int) error {
	if _, err := m.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`); err != nil {
		return fmt.Errorf("ensure schema_migrations table: %w", err)
	}

	files, err := filepath.Glob(filepath.Join(dir, "*.sql"))
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	sort.Strings(files)

	switch mode {
	case "up":
		return m.up(files)
	case "down":
		return m.down(files, steps)
	default:
		return fmt.Errorf("unknown mode %q (use 'up' or 'down')", mode)
	}
}

func (m *migrator) up(files []string) error {
	applied := 0
	for _, file := range files {
		version := filepath.Base(file)

		var exists bool
		if err := m.db.QueryRow(
			`SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)`, version,
		).Scan(&exists); err != nil {
			return fmt.Errorf("check migration %s: %w", version, err)
		}
		if exists {
			m.log.Debug("migration already applied", zap.String("version", version))
			continue
		}

		content, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("read %s: %w", file, err)
		}

		m.log.Info("applying migration", zap.String("version", version))
		if err := m.apply(extractMigrationPart(string(content), "Up"),
			`INSERT INTO schema_migrations (version) VALUES ($1)`, version); err != nil {
			return fmt.Errorf("apply %s: %w", version, err)
		}
		applied++
	}

	m.log.Info("migrations up to date", zap.Int("applied", applied))
	return nil
}

func (m *migrator) down(files []string, steps int) error {
	if steps <= 0 {
		steps = 1
	}

	byVersion := make(map[string]string, len(files))
	for _, f := range files {
		byVersion[filepath.Base(f)] = f
	}

	for i := 0; i < steps; i++ {
		var version string
		err := m.db.QueryRow(
			`SELECT version FROM schema_migrations ORDER BY applied_at DESC, version DESC LIMIT 1`,
		).Scan(&version)
		if errors.Is(err, sql.ErrNoRows) {
			m.log.Info("no migrations to roll back")
			return nil
		}
		if err != nil {
			return fmt.Errorf("find last applied migration: %w", err)
		}

		file, ok := byVersion[version]
		if !ok {
			return fmt.Errorf("migration file not found for version %s", version)
		}
		content, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("read %s: %w", file, err)
		}

		m.log.Info("rolling back migration", zap.String("version", version))
		if err := m.apply(extractMigrationPart(string(content), "Down"),
			`DELETE FROM schema_migrations WHERE version = $1`, version); err != nil {
			return fmt.Errorf("roll back %s: %w", version, err)
		}
	}
	return nil
}

// apply runs a migration body and its bookkeeping statement in one transaction.
func (m *migrator) apply(body, record, version string) error {
	tx, err := m.db.Begin()
	if err != nil {
		return err
	}
	if strings.TrimSpace(body) != "" {
		if _, err := tx.Exec(body); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	if _, err := tx.Exec(record, version); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func extractMigrationPart(content string, section string) string {
	var part strings.Builder
	inPart := false

	for _, line := range strings.Split(strings.TrimRight(content, "\r\n"), "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "-- +migrate") {
			if inPart {
				break
			}
			inPart = trimmed == "-- +migrate "+section
			continue
		}
		if inPart {
			part.WriteString(line)
			part.WriteByte('\n')
		}
	}
	return part.String()
}
