//go:build integration

package postgres

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupTestContainer(t *testing.T) *Pool {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil || container == nil {
		t.Skipf("Docker not available, skipping integration test: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	pool, err := Open(&config.DatabaseConfig{
		URL:          fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port()),
		MaxOpenConns: 5,
		MaxIdleConns: 2,
	})
	if err != nil {
		t.Fatalf("Failed to open pool: %v", err)
	}
	t.Cleanup(func() { _ = pool.Close() })
	return pool
}

func TestMigrations(t *testing.T) {
	pool := setupTestContainer(t)
	ctx := context.Background()

	applied, err := pool.MigrationsApplied(ctx)
	if err != nil {
		t.Fatalf("Failed to list migrations: %v", err)
	}
	want := []string{"001_create_attendance.sql", "002_create_attendance_person_index.sql"}
	if len(applied) != len(want) {
		t.Fatalf("Expected %d migrations, got %v", len(want), applied)
	}
	for i := range want {
		if applied[i] != want[i] {
			t.Errorf("Expected migration %d to be %s, got %s", i, want[i], applied[i])
		}
	}

	// Running again applies nothing new.
	if err := pool.Migrate(ctx); err != nil {
		t.Fatalf("Second migrate failed: %v", err)
	}
	again, _ := pool.MigrationsApplied(ctx)
	if len(again) != len(want) {
		t.Errorf("Expected migrations to stay at %d, got %d", len(want), len(again))
	}
}

func TestLedgerStore(t *testing.T) {
	pool := setupTestContainer(t)
	ctx := context.Background()
	store := NewLedgerStore(pool)

	t.Run("EmptyLoad", func(t *testing.T) {
		days, err := store.Load(ctx)
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if len(days) != 0 {
			t.Errorf("Expected empty ledger, got %v", days)
		}
	})

	t.Run("SaveAndLoad", func(t *testing.T) {
		days := attendance.Days{
			"2024-05-01": {
				"Alice": {CheckIn: "09:00:00", CheckOut: "17:30:00"},
				"Bob":   {CheckIn: "09:15:00"},
			},
		}
		if err := store.Save(ctx, days); err != nil {
			t.Fatalf("Save failed: %v", err)
		}

		got, err := store.Load(ctx)
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if got["2024-05-01"]["Alice"] != days["2024-05-01"]["Alice"] {
			t.Errorf("Alice: expected %+v, got %+v", days["2024-05-01"]["Alice"], got["2024-05-01"]["Alice"])
		}
		if got["2024-05-01"]["Bob"].CheckOut != "" {
			t.Errorf("Bob should have no checkout, got %q", got["2024-05-01"]["Bob"].CheckOut)
		}
	})

	t.Run("UpsertCompletesRecord", func(t *testing.T) {
		days, _ := store.Load(ctx)
		rec := days["2024-05-01"]["Bob"]
		rec.CheckOut = "16:00:00"
		days["2024-05-01"]["Bob"] = rec
		if err := store.Save(ctx, days); err != nil {
			t.Fatalf("Save failed: %v", err)
		}

		got, _ := store.Load(ctx)
		if got["2024-05-01"]["Bob"].CheckOut != "16:00:00" {
			t.Errorf("Expected Bob checkout 16:00:00, got %q", got["2024-05-01"]["Bob"].CheckOut)
		}
		if len(got["2024-05-01"]) != 2 {
			t.Errorf("Expected 2 records, got %d", len(got["2024-05-01"]))
		}
	})
}
