package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/recognition"
	"github.com/kozaktomas/face-attendance/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web server",
	Long: `Start the Face Attendance HTTP API.
The API serves daily reports (JSON, text and spreadsheet), runs capture
sessions in the background with live decision events, manages users and
gallery photos, and exposes Prometheus metrics on /metrics.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "Port to listen on (default: WEB_PORT or 8080)")
	serveCmd.Flags().String("host", "", "Host to bind to (default: WEB_HOST or 0.0.0.0)")
}

// resolveServeHostPort resolves port and host from flags, falling back to configuration.
func resolveServeHostPort(cmd *cobra.Command, cfg *config.Config) (int, string) {
	port := mustGetInt(cmd, "port")
	host := mustGetString(cmd, "host")
	if port == 0 {
		port = cfg.Web.Port
	}
	if host == "" {
		host = cfg.Web.Host
	}
	return port, host
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	fmt.Printf("Attendance storage: %s (%s)\n", a.backend.Name, a.backend.Location)
	index, err := a.loadGallery(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Face gallery ready with %d faces of %d people\n", index.Len(), len(a.gallery.People()))

	recognizer := recognition.NewGalleryRecognizer(
		recognition.NewEmbeddingClient(a.cfg.Embedding.URL), index,
		a.cfg.Recognition.DistanceThreshold, a.cfg.Recognition.FrameMaxSize)

	port, host := resolveServeHostPort(cmd, a.cfg)
	server := web.NewServer(a.cfg, web.Deps{
		Ledger:     a.ledger,
		Registry:   a.registry,
		Gallery:    a.gallery,
		Index:      index,
		Recognizer: recognizer,
		Reports:    a.reports,
		Metrics:    a.metrics,
		Gatherer:   a.promReg,
	}, host, port)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-sigChan
		fmt.Println("\nShutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
		if err := a.ledger.Flush(shutdownCtx); err != nil {
			fmt.Printf("Warning: attendance ledger not flushed: %v\n", err)
		}
	}()

	fmt.Printf("Starting Face Attendance API on http://%s:%d\n", host, port)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	<-shutdownDone
	return nil
}
