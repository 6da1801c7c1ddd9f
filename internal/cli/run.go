package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tidegate/simroom/internal/engine"
	"github.com/tidegate/simroom/internal/harness"
)

// NewRunCommand creates the run command: a live simulation on the wall
// clock, stopped by --duration or SIGINT.
func NewRunCommand(root *RootOptions) *cobra.Command {
	var (
		duration time.Duration
		timestep time.Duration
		players  int
	)

	cmd := &cobra.Command{
		Use:           "run <definition>",
		Short:         "Run a simulation until the duration elapses or interrupted",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			p := newPrinter(cmd, root)

			d, err := harness.LoadDefinition(args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "cannot load definition", err)
			}

			level := slog.LevelWarn
			if root.Verbose {
				level = slog.LevelInfo
			}
			logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

			eng := engine.New(d,
				engine.WithLogger(logger),
				engine.WithTimestep(timestep),
			)

			for i := 1; i <= players; i++ {
				if _, ok := eng.AddPlayer(fmt.Sprintf("player-%d", i), ""); !ok {
					return NewExitError(ExitCommandError,
						fmt.Sprintf("definition caps players below %d", players))
				}
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if duration > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, duration)
				defer cancel()
			}

			runDone := make(chan error, 1)
			go func() { runDone <- eng.Run(ctx) }()

			eng.Start()
			p.Logf("running %s at %s per tick", d.Meta.Name, eng.Scheduler().Timestep())

			<-ctx.Done()
			eng.Close()
			<-runDone

			snap := eng.Snapshot()
			if p.JSON {
				return p.OK(snap)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s after %d ticks, %d events, %d log lines\n",
				d.Meta.Name, snap.Status, snap.Tick, len(snap.Events), len(snap.Logs))
			return nil
		},
	}

	cmd.Flags().DurationVar(&duration, "duration", 10*time.Second, "how long to run (0 = until interrupted)")
	cmd.Flags().DurationVar(&timestep, "timestep", 0, "tick interval (default 16ms)")
	cmd.Flags().IntVar(&players, "players", 0, "auto-join this many players")
	return cmd
}
