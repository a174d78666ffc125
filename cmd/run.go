// cmd/run.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot-cli/api/schemas"
	"github.com/xkilldash9x/webpilot-cli/internal/agent"
	"github.com/xkilldash9x/webpilot-cli/internal/browser"
	"github.com/xkilldash9x/webpilot-cli/internal/config"
	"github.com/xkilldash9x/webpilot-cli/internal/llmclient"
	"github.com/xkilldash9x/webpilot-cli/internal/observability"
	"github.com/xkilldash9x/webpilot-cli/internal/store"
)

// newRunCmd creates and configures the `run` command, the main entry point
// for executing one browsing task.
func newRunCmd() *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run [task...]",
		Short: "Runs a natural-language browsing task to completion",
		Args:  cobra.MinimumNArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			// Bind flags to their Viper keys so command-line values override
			// the config file and environment with the right precedence.
			if err := viper.BindPFlag("browser.headless", cmd.Flags().Lookup("headless")); err != nil {
				return err
			}
			if err := viper.BindPFlag("agent.max_iterations", cmd.Flags().Lookup("max-iterations")); err != nil {
				return err
			}
			if err := viper.BindPFlag("agent.vision_mode", cmd.Flags().Lookup("vision")); err != nil {
				return err
			}
			if err := viper.BindPFlag("session.profile", cmd.Flags().Lookup("profile")); err != nil {
				return err
			}
			return viper.BindPFlag("risk.confirm_medium_risk", cmd.Flags().Lookup("confirm-medium"))
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			// Use the context passed from Execute (signal-aware).
			ctx := cmd.Context()
			logger := observability.GetLogger()

			// Re-load the config now that flags are bound.
			cfg, err := config.Load(viper.GetViper())
			if err != nil {
				return err
			}

			request := strings.TrimSpace(strings.Join(args, " "))
			logger.Info("Running task",
				zap.String("request", request),
				zap.Bool("headless", cfg.Browser.Headless),
				zap.String("vision_mode", cfg.Agent.VisionMode),
				zap.String("profile", cfg.Session.Profile))

			result, err := runTask(ctx, cfg, request, cmd, logger)
			if err != nil {
				return err
			}

			printResult(cmd, result)
			if result.Status != schemas.StatusComplete {
				return fmt.Errorf("task %s: %s", strings.ToLower(string(result.Status)), result.Error)
			}
			return nil
		},
	}

	runCmd.Flags().Bool("headless", true, "run the browser without a visible window")
	runCmd.Flags().Int("max-iterations", 0, "override the iteration ceiling")
	runCmd.Flags().String("vision", "", "when to attach screenshots: always, on_navigation, on_error, never")
	runCmd.Flags().String("profile", "", "named session profile to restore before and save after the task")
	runCmd.Flags().Bool("confirm-medium", false, "also ask for confirmation on medium-risk actions")
	return runCmd
}

// runTask wires the browser, LLM clients and control loop, runs the task,
// and tears everything down.
func runTask(ctx context.Context, cfg *config.Config, request string, cmd *cobra.Command, logger *zap.Logger) (schemas.TaskResult, error) {
	router, err := llmclient.NewRouterFromConfig(ctx, cfg, logger)
	if err != nil {
		return schemas.TaskResult{}, fmt.Errorf("failed to initialize LLM clients: %w", err)
	}

	manager := browser.NewManager(cfg, logger)
	defer func() {
		// The task context may already be canceled (e.g. Ctrl-C); shutdown
		// keeps its values but not its cancellation.
		shutdownCtx, cancel := context.WithTimeout(browser.Detach(ctx), 30*time.Second)
		defer cancel()
		if err := manager.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Browser shutdown incomplete", zap.Error(err))
		}
	}()

	session, err := manager.NewSession(ctx)
	if err != nil {
		return schemas.TaskResult{}, fmt.Errorf("failed to start browser session: %w", err)
	}

	sessionStore, err := store.NewFileSessionStore(cfg.Session.Dir, logger)
	if err != nil {
		return schemas.TaskResult{}, err
	}
	restoreProfile(ctx, cfg.Session.Profile, sessionStore, session, logger)

	snapshotter := browser.NewSnapshotter(session, cfg.Agent.Snapshot, logger)
	resolver := browser.NewResolver(snapshotter, session, logger)
	console := newConsole(cmd.InOrStdin(), cmd.OutOrStdout())

	loop := agent.NewLoop(cfg.Agent, cfg.Risk, agent.LoopDeps{
		Session:   session,
		Snapshots: snapshotter,
		Resolver:  resolver,
		LLM:       router,
		Confirmer: console,
		Prompter:  console,
	}, logger)

	result, err := loop.Run(ctx, request)
	if err != nil {
		return schemas.TaskResult{}, err
	}

	saveProfile(ctx, cfg.Session.Profile, sessionStore, session, logger)
	return result, nil
}

// restoreProfile loads previously saved cookies into the fresh session. A
// missing profile is normal on first use; anything else is logged and the
// task proceeds without the state.
func restoreProfile(ctx context.Context, profile string, sessionStore *store.FileSessionStore, session *browser.Session, logger *zap.Logger) {
	if profile == "" {
		return
	}
	state, err := sessionStore.Load(ctx, profile)
	if err != nil {
		if errors.Is(err, schemas.ErrSessionNotFound) {
			logger.Debug("No saved state for profile", zap.String("profile", profile))
		} else {
			logger.Warn("Failed to load session profile", zap.String("profile", profile), zap.Error(err))
		}
		return
	}
	if err := session.RestoreState(ctx, state); err != nil {
		logger.Warn("Failed to restore session state", zap.String("profile", profile), zap.Error(err))
	}
}

// saveProfile captures cookies after the task. Runs on a detached context
// so a canceled task still persists what it can.
func saveProfile(ctx context.Context, profile string, sessionStore *store.FileSessionStore, session *browser.Session, logger *zap.Logger) {
	if profile == "" {
		return
	}
	saveCtx, cancel := context.WithTimeout(browser.Detach(ctx), 10*time.Second)
	defer cancel()

	state, err := session.CaptureState(saveCtx, profile)
	if err != nil {
		logger.Warn("Failed to capture session state", zap.String("profile", profile), zap.Error(err))
		return
	}
	if err := sessionStore.Save(saveCtx, state); err != nil {
		logger.Warn("Failed to save session profile", zap.String("profile", profile), zap.Error(err))
	}
}

func printResult(cmd *cobra.Command, result schemas.TaskResult) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "\nStatus:     %s\n", result.Status)
	fmt.Fprintf(out, "Iterations: %d\n", result.Iterations)
	fmt.Fprintf(out, "Tokens:     %d prompt / %d completion (est. $%.4f)\n",
		result.Usage.PromptTokens, result.Usage.CompletionTokens, result.Usage.EstimatedCost)
	if result.Summary != "" {
		fmt.Fprintf(out, "Summary:    %s\n", result.Summary)
	}
	if result.Result != "" {
		fmt.Fprintf(out, "\n%s\n", result.Result)
	}
	if result.Error != "" {
		fmt.Fprintf(out, "Error:      %s\n", result.Error)
	}
}
