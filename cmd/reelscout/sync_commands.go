package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"reelscout/internal/api"
	"reelscout/internal/config"
	"reelscout/internal/daemon"
	"reelscout/internal/store"
	"reelscout/internal/syncer"
)

func newSyncCommand(ctx *commandContext) *cobra.Command {
	var wait bool
	var local bool
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "sync <platform>",
		Short: "Start a catalog sync for a platform",
		Long: "Start a catalog sync for a platform.\n\n" +
			"The request goes to the running daemon. When no daemon answers (or with --local)\n" +
			"the sync runs in this process and the command waits for it to finish.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			platform := strings.TrimSpace(args[0])
			if !local {
				run, err := syncViaDaemon(cmd, ctx, platform, wait)
				if !errors.Is(err, api.ErrDaemonUnavailable) {
					if err != nil {
						return err
					}
					return printRun(cmd, run, jsonOut)
				}
				fmt.Fprintln(cmd.ErrOrStderr(), "daemon not reachable; running sync in-process")
			}
			run, err := syncInProcess(cmd.Context(), ctx, platform)
			if err != nil && run == nil {
				return err
			}
			if printErr := printRun(cmd, api.FromSyncRun(run, time.Now()), jsonOut); printErr != nil {
				return printErr
			}
			return err
		},
	}

	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "Wait for the daemon run to finish")
	cmd.Flags().BoolVar(&local, "local", false, "Run the sync in this process instead of the daemon")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

func syncViaDaemon(cmd *cobra.Command, ctx *commandContext, platform string, wait bool) (api.SyncRun, error) {
	client, err := ctx.apiClient()
	if err != nil {
		return api.SyncRun{}, err
	}
	reqCtx := cmd.Context()
	if reqCtx == nil {
		reqCtx = context.Background()
	}
	trigger, err := client.TriggerSync(reqCtx, platform)
	if err != nil {
		if api.IsStatus(err, http.StatusConflict) {
			return api.SyncRun{}, fmt.Errorf("platform %s already has a sync in progress", platform)
		}
		return api.SyncRun{}, err
	}
	if !wait {
		fmt.Fprintf(cmd.OutOrStdout(), "Sync started: %s\n", trigger.RunID)
		return client.Run(reqCtx, trigger.RunID)
	}
	lastState := ""
	return client.WaitRun(reqCtx, trigger.RunID, time.Second, func(run api.SyncRun) {
		if run.State != lastState {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s\n", run.RunID, run.State)
			lastState = run.State
		}
	})
}

func syncInProcess(cmdCtx context.Context, ctx *commandContext, platform string) (*store.SyncRun, error) {
	if cmdCtx == nil {
		cmdCtx = context.Background()
	}
	var (
		run    *store.SyncRun
		runErr error
	)
	err := ctx.withStore(func(cfg *config.Config, st *store.Store) error {
		lock, err := daemon.AcquireLock(cfg)
		if errors.Is(err, daemon.ErrLocked) {
			return fmt.Errorf("a reelscout daemon or another sync owns %s; stop it or sync through the daemon API", cfg.LockPath())
		}
		if err != nil {
			return err
		}
		defer func() { _ = lock.Unlock() }()
		if _, err := st.FailInterruptedRuns(cmdCtx, "interrupted; owning process exited"); err != nil {
			return fmt.Errorf("recover interrupted runs: %w", err)
		}

		orch, err := newOrchestrator(cfg, st, ctx.cliLogger())
		if err != nil {
			return err
		}
		run, runErr = orch.RunSync(cmdCtx, platform, store.TriggerManual)
		if errors.Is(runErr, syncer.ErrAlreadyRunning) {
			return fmt.Errorf("platform %s already has a sync in progress", platform)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return run, runErr
}

func printRun(cmd *cobra.Command, run api.SyncRun, jsonOut bool) error {
	if jsonOut {
		return writeJSON(cmd, run)
	}
	renderRunDetail(cmd.OutOrStdout(), run)
	return nil
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "status <run-id>",
		Short: "Show the progress of a sync run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runID := strings.TrimSpace(args[0])
			if client, err := ctx.apiClient(); err == nil {
				run, err := client.Run(cmd.Context(), runID)
				if err == nil {
					return printRun(cmd, run, jsonOut)
				}
				if !errors.Is(err, api.ErrDaemonUnavailable) {
					return err
				}
			}
			return ctx.withStore(func(_ *config.Config, st *store.Store) error {
				run, err := st.GetRun(cmd.Context(), runID)
				if err != nil {
					return err
				}
				if run == nil {
					return fmt.Errorf("sync run %s not found", runID)
				}
				return printRun(cmd, api.FromSyncRun(run, time.Now()), jsonOut)
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

func newRunsCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "runs [platform]",
		Short: "List recent sync runs",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			platform := ""
			if len(args) == 1 {
				platform = args[0]
			}
			return ctx.withStore(func(_ *config.Config, st *store.Store) error {
				runs, err := st.ListRuns(cmd.Context(), platform, limit)
				if err != nil {
					return err
				}
				dtos := api.FromSyncRuns(runs, time.Now())
				if jsonOut {
					return writeJSON(cmd, api.RunList{Runs: dtos})
				}
				if len(dtos) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No sync runs recorded")
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderRunsTable(cmd.OutOrStdout(), dtos))
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum runs to show")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}
