//go:build integration

package testutil

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/roach88/idmap/internal/dialect"
)

var (
	pgOnce     sync.Once
	pgAdminURL string
	pgErr      error
)

// ensurePostgres starts one PostgreSQL container for the whole test binary.
// The container is reaped by testcontainers when the process exits.
func ensurePostgres() (string, error) {
	pgOnce.Do(func() {
		ctx := context.Background()
		container, err := postgres.Run(ctx,
			"postgres:18-alpine",
			postgres.WithDatabase("postgres"),
			postgres.WithUsername("test"),
			postgres.WithPassword("test"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(60*time.Second),
			),
		)
		if err != nil {
			pgErr = fmt.Errorf("start postgres container: %w", err)
			return
		}
		pgAdminURL, err = container.ConnectionString(ctx, "sslmode=disable")
		if err != nil {
			_ = container.Terminate(ctx)
			pgErr = fmt.Errorf("postgres connection string: %w", err)
		}
	})
	return pgAdminURL, pgErr
}

// PostgresURL creates an empty database in the shared container and returns
// its URL with the given scheme ("postgres" or "pgx"). The database is
// dropped when the test ends.
func PostgresURL(t *testing.T, scheme string) string {
	t.Helper()
	adminURL, err := ensurePostgres()
	if err != nil {
		t.Fatalf("PostgresURL() failed: %v", err)
	}

	ctx := context.Background()
	admin, _, err := dialect.Open(ctx, adminURL)
	if err != nil {
		t.Fatalf("PostgresURL() admin connection failed: %v", err)
	}
	defer admin.Close()

	name := "idmap_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	if _, err := admin.ExecContext(ctx, "CREATE DATABASE "+name); err != nil {
		t.Fatalf("PostgresURL() create database failed: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if db, _, err := dialect.Open(ctx, adminURL); err == nil {
			_, _ = db.ExecContext(ctx, "DROP DATABASE IF EXISTS "+name+" WITH (FORCE)")
			db.Close()
		}
	})

	u, err := url.Parse(adminURL)
	if err != nil {
		t.Fatalf("PostgresURL() parse failed: %v", err)
	}
	u.Scheme = scheme
	u.Path = "/" + name
	return u.String()
}
