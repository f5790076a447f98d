package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-attendance/internal/recognition"
	"github.com/kozaktomas/face-attendance/internal/registry"
)

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Manage registered users",
}

var usersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered users",
	RunE:  runUsersList,
}

var usersAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Register a user",
	Args:  cobra.ExactArgs(1),
	RunE:  runUsersAdd,
}

var usersUpdateCmd = &cobra.Command{
	Use:   "update <name>",
	Short: "Update user details; omitted flags keep their value",
	Args:  cobra.ExactArgs(1),
	RunE:  runUsersUpdate,
}

var usersDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a user and their gallery photos",
	Args:  cobra.ExactArgs(1),
	RunE:  runUsersDelete,
}

func init() {
	rootCmd.AddCommand(usersCmd)
	usersCmd.AddCommand(usersListCmd, usersAddCmd, usersUpdateCmd, usersDeleteCmd)

	for _, c := range []*cobra.Command{usersAddCmd, usersUpdateCmd} {
		c.Flags().String("age", "", "Age")
		c.Flags().String("address", "", "Address")
	}
}

func runUsersList(cmd *cobra.Command, args []string) error {
	a, err := openApp(context.Background())
	if err != nil {
		return err
	}
	defer a.Close()

	users := a.registry.List()
	if len(users) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No users registered.")
		return nil
	}
	counts := photoCounts(a.gallery)

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tAGE\tADDRESS\tPHOTOS")
	for _, u := range users {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", u.Name, u.Age, u.Address, counts[u.Name])
	}
	return w.Flush()
}

func runUsersAdd(cmd *cobra.Command, args []string) error {
	a, err := openApp(context.Background())
	if err != nil {
		return err
	}
	defer a.Close()

	u, err := a.registry.Add(args[0], registry.Info{
		Age:     mustGetString(cmd, "age"),
		Address: mustGetString(cmd, "address"),
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Added %s\n", u.Name)
	return nil
}

func runUsersUpdate(cmd *cobra.Command, args []string) error {
	a, err := openApp(context.Background())
	if err != nil {
		return err
	}
	defer a.Close()

	u, err := a.registry.Update(args[0], registry.Info{
		Age:     mustGetString(cmd, "age"),
		Address: mustGetString(cmd, "address"),
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Updated %s (age: %q, address: %q)\n", u.Name, u.Age, u.Address)
	return nil
}

func runUsersDelete(cmd *cobra.Command, args []string) error {
	a, err := openApp(context.Background())
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.registry.Delete(args[0]); err != nil {
		return err
	}

	// Only rewrite the cache if it was readable; otherwise the next load rescans.
	cached := a.gallery.LoadCache() == nil
	removed, err := a.gallery.Remove(args[0])
	if err != nil {
		return err
	}
	if cached {
		if err := a.gallery.SaveCache(); err != nil {
			return err
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s (%d gallery photos removed)\n", args[0], removed)
	return nil
}

// photoCounts reports enrolled samples per person from the encodings cache,
// or the photos on disk when the cache cannot be read.
func photoCounts(g *recognition.Gallery) map[string]int {
	err := g.LoadCache()
	if err == nil {
		return g.SampleCounts()
	}
	slog.Debug("face encodings cache unavailable, counting photos on disk", "error", err)

	counts, err := g.PhotoCounts()
	if err != nil {
		slog.Debug("gallery directory unreadable", "error", err)
		return map[string]int{}
	}
	return counts
}
