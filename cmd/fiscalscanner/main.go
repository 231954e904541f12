package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"FiscalScanner/internal/app"
	"FiscalScanner/internal/config"
	"FiscalScanner/internal/domain"
	"FiscalScanner/internal/logging"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "fiscalscanner",
		Short: "Ingests financial publications from government publishers",
	}
	root.AddCommand(serveCmd(), triggerCmd(), probeCmd(), jobsCmd(), statsCmd(), resolveCmd())
	return root
}

func buildApp() (*app.Application, error) {
	cfg := config.Load()
	logger := logging.New(cfg.Logging.Level)
	return app.New(cfg, logger)
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := buildApp()
			if err != nil {
				return err
			}
			defer application.Close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := application.Run(ctx); err != nil && err != context.Canceled {
				return err
			}
			return nil
		},
	}
}

func triggerCmd() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "trigger <domain>",
		Short: "Run a single source immediately, outside its schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := buildApp()
			if err != nil {
				return err
			}
			defer application.Close()

			job, err := application.Trigger(cmd.Context(), args[0], dryRun)
			if err != nil {
				return err
			}

			fmt.Printf("job %s finished with status %s\n", job.ID, job.Status)
			fmt.Printf("  processed=%d created=%d updated=%d errors=%d\n",
				job.ItemsProcessed, job.ItemsCreated, job.ItemsUpdated, len(job.Errors))
			for _, jobErr := range job.Errors {
				fmt.Printf("  [%s] %s: %s\n", jobErr.Stage, jobErr.Target, jobErr.Message)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "execute the pipeline without persisting accepted records")
	return cmd
}

func probeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "probe",
		Short: "Check reachability of every configured source",
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := buildApp()
			if err != nil {
				return err
			}
			defer application.Close()

			failures := 0
			for _, result := range application.Probe(cmd.Context()) {
				status := "ok"
				switch {
				case !result.Reachable:
					status = "unreachable"
					failures++
				case !result.MarkerFound:
					status = "marker missing"
					failures++
				}
				fmt.Printf("%-20s %-20s %-14s %8s  %s\n",
					result.Domain, result.Target, status,
					result.Latency.Round(time.Millisecond), result.Error)
			}

			if failures > 0 {
				return fmt.Errorf("%d target(s) failed the probe", failures)
			}
			return nil
		},
	}
}

func jobsCmd() *cobra.Command {
	var (
		domainFlag string
		statusFlag string
		sinceDays  int
		limit      int
		offset     int
	)

	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List ingestion jobs from the ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := buildApp()
			if err != nil {
				return err
			}
			defer application.Close()

			filter := domain.JobFilter{
				Domain: domainFlag,
				Status: domain.JobStatus(statusFlag),
				Limit:  limit,
				Offset: offset,
			}
			if sinceDays > 0 {
				filter.From = time.Now().UTC().AddDate(0, 0, -sinceDays)
			}

			jobs, err := application.Jobs(cmd.Context(), filter)
			if err != nil {
				return err
			}

			for _, job := range jobs {
				duration := "-"
				if d := job.Duration(); d != nil {
					duration = d.Round(time.Millisecond).String()
				}
				fmt.Printf("%s  %-20s %-22s %8s  p=%d c=%d u=%d e=%d\n",
					job.CreatedAt.Format(time.RFC3339), job.Domain, job.Status,
					duration, job.ItemsProcessed, job.ItemsCreated, job.ItemsUpdated, len(job.Errors))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&domainFlag, "domain", "", "filter by source domain")
	cmd.Flags().StringVar(&statusFlag, "status", "", "filter by job status")
	cmd.Flags().IntVar(&sinceDays, "since", 0, "only jobs created in the last N days")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum rows")
	cmd.Flags().IntVar(&offset, "offset", 0, "rows to skip for pagination")
	return cmd
}

func resolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <review-id>",
		Short: "Mark a review-queue entry as resolved",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid review id %q: %w", args[0], err)
			}

			application, err := buildApp()
			if err != nil {
				return err
			}
			defer application.Close()

			if err := application.ResolveReview(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Printf("review entry %d resolved\n", id)
			return nil
		},
	}
}

func statsCmd() *cobra.Command {
	var lookbackDays int

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Aggregate job statistics over a lookback window",
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := buildApp()
			if err != nil {
				return err
			}
			defer application.Close()

			since := time.Now().UTC().AddDate(0, 0, -lookbackDays)
			stats, err := application.Stats(cmd.Context(), since)
			if err != nil {
				return err
			}

			fmt.Printf("since %s\n", since.Format("2006-01-02"))
			for status, count := range stats.ByStatus {
				fmt.Printf("  %-24s %d\n", status, count)
			}
			fmt.Printf("items: processed=%d created=%d updated=%d\n",
				stats.ItemsProcessed, stats.ItemsCreated, stats.ItemsUpdated)
			for name, count := range stats.ByDomain {
				fmt.Printf("  domain %-20s %d\n", name, count)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&lookbackDays, "days", 7, "lookback window in days")
	return cmd
}
