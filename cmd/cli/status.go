package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/sevigo/code-mender/internal/core"
	"github.com/sevigo/code-mender/internal/wire"
)

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status [session-id]",
	Short: "Shows the state of a fix session and its tracked problems.",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		ctx := context.Background()

		app, cleanup, err := wire.InitializeApp(ctx)
		if err != nil {
			return fmt.Errorf("failed to initialize app services: %w", err)
		}
		defer cleanup()

		session, err := app.Store.GetSession(ctx, args[0])
		if err != nil {
			return fmt.Errorf("failed to load session: %w", err)
		}

		if statusJSON {
			encoder := json.NewEncoder(os.Stdout)
			encoder.SetIndent("", "  ")
			return encoder.Encode(session)
		}

		fmt.Printf("session %s (%s) started %s\n\n",
			session.ID, session.State, session.StartedAt.Format(time.RFC822))

		if len(session.Problems) == 0 {
			fmt.Println("no problems tracked")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "FILE\tLINE\tSEVERITY\tSTATUS\tRETRIES\tNOTE")
		for _, p := range session.Problems {
			note := p.LastError
			if p.Status == core.ProblemSkipped && p.SkipReason != "" {
				note = string(p.SkipReason)
			}
			fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%d\t%s\n",
				p.File, p.Line, p.Severity, p.Status, p.RetryCount, note)
		}
		return w.Flush()
	},
}

func init() { //nolint:gochecknoinits // Cobra's init function for command registration
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Output status as JSON")
	rootCmd.AddCommand(statusCmd)
}
