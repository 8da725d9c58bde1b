package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/noah-isme/marketing-agent/internal/app"
	"github.com/noah-isme/marketing-agent/internal/config"
	"github.com/noah-isme/marketing-agent/internal/models"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:           "agentctl",
		Short:         "Operator tooling for the marketing agent",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log service activity to stderr")

	open := func(cmd *cobra.Command) (*app.Container, error) {
		cfg, err := config.Load()
		if err != nil {
			return nil, err
		}
		level := zerolog.WarnLevel
		if verbose {
			level = zerolog.DebugLevel
		}
		logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()
		return app.New(commandContext(cmd), cfg, logger)
	}

	cmd.AddCommand(
		newExpireCommand(open),
		newProcessCommand(open),
		newPruneAuditCommand(open),
		newStatsCommand(open),
		newJobsCommand(open),
		newRunCommand(open),
		newResetGoalsCommand(open),
	)
	return cmd
}

type opener func(cmd *cobra.Command) (*app.Container, error)

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func newExpireCommand(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "expire",
		Short: "Expire pending actions whose approval window has passed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := open(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			count, err := c.Approvals.ExpireDue(commandContext(cmd))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "expired %d action(s)\n", count)
			return nil
		},
	}
}

func newProcessCommand(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "process",
		Short: "Execute every approved action that has not run yet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := open(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			batch, err := c.Executor.ProcessApprovedActions(commandContext(cmd))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "processed %d: %d succeeded, %d failed, %d skipped\n", batch.Processed, batch.Successful, batch.Failed, batch.Skipped)
			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			for _, result := range batch.Results {
				outcome := "ok"
				switch {
				case result.Skipped:
					outcome = "skipped"
				case !result.Success:
					outcome = "failed: " + result.Error
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", result.ActionID, result.Type, outcome)
			}
			return w.Flush()
		},
	}
}

func newPruneAuditCommand(open opener) *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "prune-audit",
		Short: "Delete audit entries older than the retention window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := open(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			if !cmd.Flags().Changed("days") {
				days = c.Config.AuditRetentionDays
			}
			if days <= 0 {
				return fmt.Errorf("--days must be positive")
			}

			removed, err := c.Audit.Prune(commandContext(cmd), days)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d audit entr(ies) older than %d days\n", removed, days)
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", 0, "Retention window in days (defaults to the configured value)")
	return cmd
}

func newStatsCommand(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show action counts, audit totals and budget usage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := open(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			stats, err := c.Dashboard.Stats(commandContext(cmd))
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "STATUS\tCOUNT")
			for _, status := range []models.ActionStatus{
				models.StatusPending, models.StatusApproved, models.StatusExecuted,
				models.StatusFailed, models.StatusRejected, models.StatusExpired,
			} {
				fmt.Fprintf(w, "%s\t%d\n", status, stats.Actions[status])
			}
			fmt.Fprintln(w)

			fmt.Fprintf(w, "audit entries\t%d (today %d, this week %d)\n", stats.Audit.Total, stats.Audit.Today, stats.Audit.ThisWeek)
			fmt.Fprintf(w, "monthly spend\t%s of %s (%d%%)\n",
				models.FormatMinorUnits(stats.Budget.Monthly.Spent), models.FormatMinorUnits(stats.Budget.Monthly.Limit), stats.Budget.Monthly.PercentUsed)
			fmt.Fprintf(w, "daily spend\t%s of %s (%d%%)\n",
				models.FormatMinorUnits(stats.Budget.Daily.Spent), models.FormatMinorUnits(stats.Budget.Daily.Limit), stats.Budget.Daily.PercentUsed)
			return w.Flush()
		},
	}
}

func newJobsCommand(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "jobs",
		Short: "List the scheduled jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := open(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			jobs := c.Scheduler.List()
			sort.Slice(jobs, func(i, k int) bool { return jobs[i].Name < jobs[k].Name })

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "JOB\tSCHEDULE")
			for _, job := range jobs {
				spec := job.Spec
				if spec == "" {
					spec = "manual"
				}
				fmt.Fprintf(w, "%s\t%s\n", job.Name, spec)
			}
			return w.Flush()
		},
	}
}

func newRunCommand(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "run <job>",
		Short: "Run one scheduled job now, honouring the replica lock",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := open(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			if err := c.Scheduler.RunNow(commandContext(cmd), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "job %s completed\n", args[0])
			return nil
		},
	}
}

func newResetGoalsCommand(open opener) *cobra.Command {
	return &cobra.Command{
		Use:       "reset-goals <daily|weekly|monthly>",
		Short:     "Zero the progress of every goal with the given period",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{string(models.PeriodDaily), string(models.PeriodWeekly), string(models.PeriodMonthly)},
		RunE: func(cmd *cobra.Command, args []string) error {
			period := models.GoalPeriod(args[0])
			switch period {
			case models.PeriodDaily, models.PeriodWeekly, models.PeriodMonthly:
			default:
				return fmt.Errorf("unknown period %q", args[0])
			}

			c, err := open(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			count, err := c.Settings.ResetGoalPeriod(commandContext(cmd), period)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "reset %d %s goal(s)\n", count, period)
			return nil
		},
	}
}
