package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/spf13/cobra"
)

var galleryCmd = &cobra.Command{
	Use:   "gallery",
	Short: "Manage the face gallery",
	Long: `The face gallery is a directory with one folder of photos per person
(GALLERY_DIR/<name>/*.jpg). Face embeddings are cached in ENCODINGS_FILE.`,
}

var galleryReloadCmd = &cobra.Command{
	Use:   "reload",
	Short: "Recompute face embeddings for every gallery photo",
	RunE:  runGalleryReload,
}

var galleryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List gallery people and their photo counts",
	RunE:  runGalleryList,
}

var galleryEnrollCmd = &cobra.Command{
	Use:   "enroll <name> <photo>...",
	Short: "Add photos of a person to the gallery",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runGalleryEnroll,
}

func init() {
	rootCmd.AddCommand(galleryCmd)
	galleryCmd.AddCommand(galleryReloadCmd, galleryListCmd, galleryEnrollCmd)
}

func runGalleryReload(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	photos, err := a.gallery.PhotoPeople()
	if err != nil {
		return err
	}
	if len(photos) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "No photos found in %s\n", a.gallery.Dir())
	}

	bar := newProgressBar(-1, "Encoding gallery")
	if err := a.gallery.Scan(ctx, func(done, total int) {
		bar.ChangeMax(total)
		_ = bar.Set(done)
	}); err != nil {
		return err
	}
	_ = bar.Finish()
	fmt.Fprintln(cmd.OutOrStdout())

	if err := a.gallery.SaveCache(); err != nil {
		return err
	}
	added, err := a.registry.EnsureAll(a.gallery.People())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Encoded %d faces of %d people", len(a.gallery.Samples()), len(a.gallery.People()))
	if len(added) > 0 {
		fmt.Fprintf(cmd.OutOrStdout(), ", registered %d new users", len(added))
	}
	fmt.Fprintln(cmd.OutOrStdout())
	return nil
}

func runGalleryList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if _, err := a.loadGallery(ctx); err != nil {
		return err
	}
	counts := a.gallery.SampleCounts()
	if len(counts) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "The face gallery is empty.")
		return nil
	}
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(cmd.OutOrStdout(), "%-30s %d faces\n", name, counts[name])
	}
	return nil
}

func runGalleryEnroll(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if _, err := a.loadGallery(ctx); err != nil {
		return err
	}

	name := args[0]
	enrolled := 0
	for _, path := range args[1:] {
		data, err := os.ReadFile(path)
		if err != nil {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s: %v\n", path, err)
			continue
		}
		sample, err := a.gallery.Enroll(ctx, name, data)
		if err != nil {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s: %v\n", path, err)
			continue
		}
		enrolled++
		fmt.Fprintf(cmd.OutOrStdout(), "  %s -> %s\n", path, sample.Path)
	}
	if enrolled == 0 {
		return fmt.Errorf("no photo of %s could be enrolled", name)
	}

	if err := a.gallery.SaveCache(); err != nil {
		return err
	}
	if _, err := a.registry.Ensure(name); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Enrolled %d of %d photos of %s\n", enrolled, len(args)-1, name)
	return nil
}
