// cmd/followup-scheduler/commands.go
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"followup-orchestrator/internal/common/config"
	httpclient "followup-orchestrator/internal/common/http"
	quotamanager "followup-orchestrator/internal/followup/quota-manager"
	"followup-orchestrator/internal/followup/scheduler"
)

var configPath string

func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.LoadFromFile(configPath)
	}
	return config.Load()
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// serveCmd runs the timers and the ops server until SIGINT/SIGTERM.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the follow-up scheduler and ops server",
	Long: `Start all scheduler jobs and the ops HTTP server.

Jobs:
  process-due-tasks      claim and send due follow-ups
  dead-lead-sweep        retire leads that never answered the final attempt
  performance-analytics  roll up daily metrics
  health-check           flag error bursts and backlog
  template-performance   refresh template response rates`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("config load failed: %w", err)
	}
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	config.Watch(a.reload, func(err error) {
		a.log.Warn("configuration reload rejected", map[string]interface{}{"error": err})
	})

	if err := a.scheduler.Start(ctx); err != nil {
		return err
	}

	srv := &http.Server{
		Addr: cfg.Server.Address,
		Handler: newOpsRouter(&opsHandler{
			jobs:   a.scheduler,
			quota:  a.quota,
			checks: a.readiness(),
			logger: a.log,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}
	serverErr := make(chan error, 1)
	go func() {
		a.log.Info("ops server listening", map[string]interface{}{"address": srv.Addr})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("shutdown signal received, stopping scheduler", nil)
	case err := <-serverErr:
		a.log.Error("ops server failed", map[string]interface{}{"error": err})
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Warn("ops server shutdown", map[string]interface{}{"error": err})
	}
	a.scheduler.Stop()
	a.log.Info("scheduler stopped", nil)
	return nil
}

var runOnceCmd = &cobra.Command{
	Use:   "run-once",
	Short: "Process one batch of due follow-ups and exit",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("config load failed: %w", err)
		}
		a, err := newApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.close()

		stats, err := a.scheduler.RunOnce(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), stats)
	},
}

var runJobCmd = &cobra.Command{
	Use:       "run-job <name>",
	Short:     "Run one scheduler job synchronously",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{scheduler.JobProcessDueTasks, scheduler.JobDeadLeadSweep, scheduler.JobPerformanceAnalytics, scheduler.JobHealthCheck, scheduler.JobTemplatePerformance},
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("config load failed: %w", err)
		}
		a, err := newApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.close()

		if err := a.scheduler.RunJob(cmd.Context(), args[0]); err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), a.scheduler.GetStatus())
	},
}

var statusAddr string

// statusCmd asks a running instance, it does not open any connections itself.
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the status of a running scheduler",
	RunE: func(cmd *cobra.Command, _ []string) error {
		var st scheduler.Status
		client := httpclient.NewClient(5 * time.Second)
		url := strings.TrimRight(statusAddr, "/") + "/status"
		if err := client.DoJSON(cmd.Context(), http.MethodGet, url, nil, nil, &st); err != nil {
			return fmt.Errorf("query %s: %w", url, err)
		}
		return printJSON(cmd.OutOrStdout(), st)
	},
}

var (
	quotaAccounts []string
	quotaDryRun   bool
)

var enforceQuotaCmd = &cobra.Command{
	Use:   "enforce-quota",
	Short: "Enforce the approved-template limit for one or all accounts",
	Long: `Run quota enforcement for the given accounts, or for every account with leads.

With --dry-run only the current usage is reported.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("config load failed: %w", err)
		}
		a, err := newApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.close()

		accounts := quotaAccounts
		if len(accounts) == 0 {
			if accounts, err = a.store.ListAccounts(cmd.Context()); err != nil {
				return err
			}
		}
		return enforceQuota(cmd.Context(), cmd.OutOrStdout(), a.quota, accounts, quotaDryRun)
	},
}

type quotaEnforcer interface {
	Status(ctx context.Context, accountID string) (*quotamanager.Status, error)
	EnforceLimit(ctx context.Context, accountID string) (*quotamanager.EnforcementResult, error)
}

func enforceQuota(ctx context.Context, w io.Writer, q quotaEnforcer, accounts []string, dryRun bool) error {
	var errs []error
	for _, acc := range accounts {
		var out interface{}
		var err error
		if dryRun {
			out, err = q.Status(ctx, acc)
		} else {
			out, err = q.EnforceLimit(ctx, acc)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("account %s: %w", acc, err))
			continue
		}
		if err := printJSON(w, out); err != nil {
			return err
		}
	}
	return errors.Join(errs...)
}

func init() {
	statusCmd.Flags().StringVar(&statusAddr, "addr", "http://localhost:8080", "ops server base URL")
	enforceQuotaCmd.Flags().StringSliceVar(&quotaAccounts, "account", nil, "account id (repeatable); defaults to all accounts")
	enforceQuotaCmd.Flags().BoolVar(&quotaDryRun, "dry-run", false, "report usage without deleting templates")
}
