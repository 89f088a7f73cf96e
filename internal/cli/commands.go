package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"agency-tracker/pkg/model"
	"agency-tracker/pkg/tracker"
)

func newMigrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the tracker schema if it is missing",
		Args:  cobra.NoArgs,
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			// Opening the store already ran EnsureSchema.
			fmt.Fprintf(cmd.OutOrStdout(), "schema ready (%s)\n", a.cfg.Database.Driver)
			return nil
		}),
	}
}

func newSyncCmd(a *app) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "sync [project-id]...",
		Short: "Reconcile project status with its tasks",
		Args: func(cmd *cobra.Command, args []string) error {
			if all != (len(args) == 0) {
				return fmt.Errorf("give project ids or --all, not both")
			}
			return nil
		},
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			if all {
				res, err := a.tracker.SyncAll(cmd.Context())
				if err != nil {
					return err
				}
				if a.jsonOut {
					return a.printJSON(cmd.OutOrStdout(), res)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d checked, %d updated, %d skipped, %d failed\n",
					res.Checked, res.Changed, res.Skipped, res.Failed)
				return nil
			}
			var results []tracker.SyncResult
			for _, id := range args {
				res, err := a.tracker.SyncProjectStatus(cmd.Context(), id)
				if err != nil {
					return err
				}
				results = append(results, res)
			}
			if a.jsonOut {
				return a.printJSON(cmd.OutOrStdout(), results)
			}
			for _, res := range results {
				note := "unchanged"
				switch {
				case res.Skipped:
					note = "skipped, sync in flight"
				case res.Changed:
					note = "updated"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s (%s)\n", res.ProjectID, res.Status.DisplayName(), note)
			}
			return nil
		}),
	}
	cmd.Flags().BoolVar(&all, "all", false, "sync every project")
	return cmd
}

func newFollowUpsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "followups",
		Aliases: []string{"fu"},
		Short:   "List overdue and stale tasks with reminder links",
		Args:    cobra.NoArgs,
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			fu, err := a.tracker.FollowUps(cmd.Context())
			if err != nil {
				return err
			}
			if a.jsonOut {
				return a.printJSON(cmd.OutOrStdout(), fu)
			}
			renderFollowUps(cmd.OutOrStdout(), fu)
			return nil
		}),
	}
}

func newReportCmd(a *app) *cobra.Command {
	var clientID string
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Risk report, worst projects first",
		Long: `Print each client's rollup and its projects ordered worst first:
most overdue, then most stale, then most blocked, then least complete.`,
		Args: cobra.NoArgs,
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			var ids []string
			if clientID != "" {
				ids = []string{clientID}
			} else {
				cards, err := a.tracker.ListClients(ctx, "")
				if err != nil {
					return err
				}
				for _, c := range cards {
					ids = append(ids, c.ID)
				}
			}

			views := make([]tracker.ClientView, 0, len(ids))
			for _, id := range ids {
				v, err := a.tracker.ClientDetail(ctx, id, "")
				if err != nil {
					return err
				}
				views = append(views, v)
			}
			if a.jsonOut {
				return a.printJSON(cmd.OutOrStdout(), views)
			}
			if len(views) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No clients found.")
				return nil
			}
			for i, v := range views {
				if i > 0 {
					fmt.Fprintln(cmd.OutOrStdout())
				}
				renderClient(cmd.OutOrStdout(), v)
			}
			return nil
		}),
	}
	cmd.Flags().StringVar(&clientID, "client", "", "only report on this client id")
	return cmd
}

func newTaskCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Update tasks",
	}
	cmd.AddCommand(newTaskStatusCmd(a), newTaskAssignCmd(a), newTaskRemindedCmd(a))
	return cmd
}

func newTaskStatusCmd(a *app) *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "status <task-id> <TODO|IN_PROGRESS|BLOCKED|DONE>",
		Short: "Move a task to a new status",
		Long: `Move a task to a new status. BLOCKED needs --reason; any other status
clears the reason. The owning project's status is re-synced afterwards.`,
		Args: cobra.ExactArgs(2),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			status := model.TaskStatus(strings.ToUpper(args[1]))
			res, err := a.tracker.TransitionTask(cmd.Context(), args[0], status, reason)
			if err != nil {
				return err
			}
			if a.jsonOut {
				return a.printJSON(cmd.OutOrStdout(), res)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s -> %s\n", res.Task.ID, res.Task.Title, res.Task.Status)
			if res.Sync.Changed {
				fmt.Fprintf(cmd.OutOrStdout(), "project %s is now %s\n", res.Sync.ProjectID, res.Sync.Status.DisplayName())
			}
			return nil
		}),
	}
	cmd.Flags().StringVar(&reason, "reason", "", "why the task is blocked")
	return cmd
}

func newTaskAssignCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "assign <task-id> <user-id>",
		Short: "Reassign a task (admin, use --as)",
		Args:  cobra.ExactArgs(2),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			t, err := a.tracker.ReassignTask(cmd.Context(), a.actor, args[0], args[1])
			if err != nil {
				return err
			}
			if a.jsonOut {
				return a.printJSON(cmd.OutOrStdout(), t)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s assigned to %s\n", t.ID, t.AssigneeUserID)
			return nil
		}),
	}
}

func newTaskRemindedCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "reminded <task-id>",
		Short: "Record that a reminder was sent",
		Args:  cobra.ExactArgs(1),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			t, err := a.tracker.MarkReminded(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if a.jsonOut {
				return a.printJSON(cmd.OutOrStdout(), t)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s reminded at %s\n", t.ID, t.LastRemindedAt.Format("2006-01-02 15:04"))
			return nil
		}),
	}
}
