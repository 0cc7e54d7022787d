package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/sevigo/code-mender/internal/core"
	"github.com/sevigo/code-mender/internal/wire"
)

var fixMaxProblems int

var fixCmd = &cobra.Command{
	Use:   "fix [path]",
	Short: "Run a full fix session against a local project.",
	Long:  `Analyzes the project, promotes the highest-ranked findings to tracked problems, and drives each one through suggestion, apply, and verification. Blocks until the session finishes.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		app, cleanup, err := wire.InitializeApp(ctx)
		if err != nil {
			return fmt.Errorf("failed to initialize app services: %w", err)
		}
		defer cleanup()

		req := &core.SessionRequest{
			SessionID:   uuid.NewString(),
			MaxProblems: fixMaxProblems,
		}
		if isRemoteTarget(args[0]) {
			req.CloneURL = args[0]
		} else {
			projectPath, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			req.ProjectPath = projectPath
		}

		if err := app.Dispatcher.Dispatch(ctx, req); err != nil {
			return fmt.Errorf("failed to queue fix session: %w", err)
		}
		fmt.Printf("fix session %s running against %s\n", req.SessionID, args[0])

		// Stop drains the queue and waits for the session to finish.
		app.Dispatcher.Stop()

		session, err := app.Store.GetSession(ctx, req.SessionID)
		if err != nil {
			return fmt.Errorf("failed to load session result: %w", err)
		}
		printSessionSummary(session)
		return nil
	},
}

func init() { //nolint:gochecknoinits // Cobra's init function for command registration
	fixCmd.Flags().IntVar(&fixMaxProblems, "max-problems", 10, "Cap on how many findings are promoted to problems (0 = no cap)")
	rootCmd.AddCommand(fixCmd)
}

func printSessionSummary(session *core.WorkflowSession) {
	var resolved, skipped, open int
	for _, p := range session.Problems {
		switch p.Status {
		case core.ProblemResolved:
			resolved++
		case core.ProblemSkipped:
			skipped++
		default:
			open++
		}
	}

	fmt.Println()
	color.New(color.Bold).Printf("session %s: %s\n", session.ID, session.State)
	color.Green("  resolved: %d", resolved)
	color.Yellow("  skipped:  %d", skipped)
	if open > 0 {
		color.Red("  awaiting manual review: %d", open)
	}

	for _, p := range session.Problems {
		fmt.Printf("%s %s:%d %s", severitySprint(p.Severity), p.File, p.Line, p.Description)
		switch p.Status {
		case core.ProblemResolved:
			color.Green("  -> fixed (%s)", p.ResolvedBy)
		case core.ProblemSkipped:
			color.Yellow("  -> skipped (%s)", p.SkipReason)
		default:
			color.Red("  -> %s: %s", p.Status, p.LastError)
		}
	}
}
