package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/schollz/progressbar/v3"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/metrics"
	"github.com/kozaktomas/face-attendance/internal/recognition"
	"github.com/kozaktomas/face-attendance/internal/registry"
	"github.com/kozaktomas/face-attendance/internal/report"
)

// app holds the services shared by the commands.
type app struct {
	cfg      *config.Config
	backend  *database.Backend
	ledger   *attendance.Ledger
	registry *registry.Registry
	reports  *report.Generator
	gallery  *recognition.Gallery
	metrics  *metrics.Metrics
	promReg  *prometheus.Registry
}

// openApp loads configuration and opens the ledger, the user registry and
// the report generator. The face gallery is created but not loaded.
func openApp(ctx context.Context) (*app, error) {
	cfg := config.Load()
	logger := slog.Default()

	backend, err := database.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open attendance storage: %w", err)
	}
	slog.Debug("attendance storage", "backend", backend.Name, "location", backend.Location)

	promReg := prometheus.NewRegistry()
	m := metrics.New(promReg)

	reg, err := registry.Open(cfg.Storage.UserInfoFile, registry.WithLogger(logger))
	if err != nil {
		backend.Close()
		return nil, fmt.Errorf("failed to open user registry: %w", err)
	}

	gen, err := report.NewGenerator(cfg.Labels, cfg.Reports.Dir, report.WithLogger(logger))
	if err != nil {
		backend.Close()
		return nil, err
	}

	detector := recognition.NewEmbeddingClient(cfg.Embedding.URL)
	gallery := recognition.NewGallery(cfg.Gallery.Dir, cfg.Gallery.EncodingsFile, detector,
		recognition.WithGalleryLogger(logger))

	return &app{
		cfg:      cfg,
		backend:  backend,
		ledger:   attendance.Open(ctx, backend.Store, attendance.WithLogger(logger), attendance.WithMetrics(m)),
		registry: reg,
		reports:  gen,
		gallery:  gallery,
		metrics:  m,
		promReg:  promReg,
	}, nil
}

func (a *app) Close() {
	if err := a.backend.Close(); err != nil {
		slog.Warn("closing attendance storage", "error", err)
	}
}

// loadGallery fills the gallery from the cache or by embedding every photo,
// registers gallery people missing from the registry and returns the index.
func (a *app) loadGallery(ctx context.Context) (*recognition.Index, error) {
	var bar *progressbar.ProgressBar
	progress := func(done, total int) {
		if bar == nil {
			bar = newProgressBar(total, "Encoding gallery")
		}
		_ = bar.Set(done)
	}
	if err := a.gallery.Load(ctx, progress); err != nil {
		return nil, fmt.Errorf("failed to load face gallery: %w", err)
	}
	if bar != nil {
		_ = bar.Finish()
		fmt.Println()
	}
	if _, err := a.registry.EnsureAll(a.gallery.People()); err != nil {
		return nil, err
	}
	return recognition.NewIndex(a.gallery.Samples()), nil
}

// roster merges registered users with the people that have gallery photos.
func (a *app) roster() []string {
	people, err := a.gallery.PhotoPeople()
	if err != nil {
		slog.Warn("listing gallery people", "error", err)
	}
	return registry.Roster(a.registry.Names(), people)
}

func newProgressBar(total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("photos"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)
}

// resolveDate validates a --date value. An empty value is today.
func resolveDate(raw string, now time.Time) (string, error) {
	if raw == "" {
		return attendance.DateOf(now), nil
	}
	return attendance.ParseDate(raw)
}
