// Package main provides the backfill CLI for rebuilding sprint snapshot
// history outside the API process.
package main

import (
    "context"
    "fmt"
    "os"

    "github.com/spf13/cobra"

    "github.com/example/sprint-rewind/internal/config"
    "github.com/example/sprint-rewind/internal/logger"
    "github.com/example/sprint-rewind/internal/repo"
    "github.com/example/sprint-rewind/internal/services"
)

func main() {
    rootCmd := &cobra.Command{
        Use:   "backfill",
        Short: "Rebuild sprint snapshot history from the revision log",
        Long: `Backfill reconstructs day-by-day sprint snapshots from recorded
work-item revisions. Rebuilds are idempotent: re-running a sprint
converges to identical rows.`,
        SilenceUsage:  true,
        SilenceErrors: true,
    }

    rootCmd.AddCommand(rebuildCmd())
    rootCmd.AddCommand(rebuildClosedCmd())
    rootCmd.AddCommand(enrichCmd())

    if err := rootCmd.Execute(); err != nil {
        fmt.Fprintf(os.Stderr, "Error: %v\n", err)
        os.Exit(1)
    }
}

func setup(ctx context.Context) (*services.Backfill, func()) {
    cfg := config.Load()
    log := logger.New(cfg)
    db := repo.MustOpen(ctx, cfg, log)
    repository := repo.NewRepository(db, log)
    svc := services.New(cfg, log, repository)
    return services.NewBackfill(cfg, log, svc), db.Close
}

func printReport(rep services.Report) {
    fmt.Printf("processed: %d, failed: %d\n", rep.Processed, rep.Failed)
    for name, reason := range rep.Failures {
        fmt.Printf("  FAILED %s: %s\n", name, reason)
    }
}

func rebuildCmd() *cobra.Command {
    return &cobra.Command{
        Use:   "rebuild <sprint-name> [sprint-name...]",
        Short: "Rebuild full history for the named sprints",
        Args:  cobra.MinimumNArgs(1),
        RunE: func(cmd *cobra.Command, args []string) error {
            bf, closeDB := setup(cmd.Context())
            defer closeDB()
            rep := bf.RebuildSprints(cmd.Context(), args)
            printReport(rep)
            if rep.Failed > 0 { return fmt.Errorf("%d sprint(s) failed", rep.Failed) }
            return nil
        },
    }
}

func rebuildClosedCmd() *cobra.Command {
    return &cobra.Command{
        Use:   "rebuild-closed",
        Short: "Rebuild full history for every closed sprint",
        RunE: func(cmd *cobra.Command, _ []string) error {
            bf, closeDB := setup(cmd.Context())
            defer closeDB()
            rep, err := bf.RebuildClosedSprints(cmd.Context())
            if err != nil { return err }
            printReport(rep)
            if rep.Failed > 0 { return fmt.Errorf("%d sprint(s) failed", rep.Failed) }
            return nil
        },
    }
}

func enrichCmd() *cobra.Command {
    return &cobra.Command{
        Use:   "enrich",
        Short: "Derive initial/last/done remaining fields from revision history",
        RunE: func(cmd *cobra.Command, _ []string) error {
            bf, closeDB := setup(cmd.Context())
            defer closeDB()
            updated, skipped, err := bf.EnrichItemHistory(cmd.Context())
            if err != nil { return err }
            fmt.Printf("updated: %d, skipped: %d\n", updated, skipped)
            return nil
        },
    }
}
