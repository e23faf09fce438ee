package cmd

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/morntool/webshell/internal/config"
	"github.com/morntool/webshell/internal/domain/repository"
	"github.com/morntool/webshell/internal/persistence/sqlite"
)

var (
	historyJSON bool
	historyMax  int
)

const defaultHistoryMax = 50

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Browse and manage visit history",
	RunE:  runHistory,
}

var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all visit history",
	RunE:  runHistoryClear,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyClearCmd)

	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "output as JSON")
	historyCmd.Flags().IntVar(&historyMax, "max", defaultHistoryMax, "maximum entries to show")
}

// openVisits opens the visit repository for CLI use, outside a running app.
func openVisits() (context.Context, *sql.DB, repository.VisitRepository, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, nil, err
	}
	ctx := newContext(cfg)
	dbPath := cfg.Database.Path
	if dbPath == "" {
		dbPath = filepath.Join(config.DefaultDataDir(), "webshell.db")
	}
	db, err := sqlite.NewConnection(ctx, dbPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open database: %w", err)
	}
	return ctx, db, sqlite.NewVisitRepository(db), nil
}

func runHistory(_ *cobra.Command, _ []string) error {
	ctx, db, visits, err := openVisits()
	if err != nil {
		return err
	}
	defer db.Close()

	entries, err := visits.Recent(ctx, historyMax)
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}

	if historyJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}

	if len(entries) == 0 {
		fmt.Println("no visits recorded")
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "LAST VISITED\tCOUNT\tURL")
	for _, v := range entries {
		fmt.Fprintf(w, "%s\t%d\t%s\n", v.LastVisitedAt.Local().Format("2006-01-02 15:04"), v.VisitCount, v.URL)
	}
	return w.Flush()
}

func runHistoryClear(_ *cobra.Command, _ []string) error {
	ctx, db, visits, err := openVisits()
	if err != nil {
		return err
	}
	defer db.Close()

	if err := visits.Clear(ctx); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	fmt.Println("history cleared")
	return nil
}
