package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/boxlink/internal/audit"
)

func auditCmd(gf *globalFlags) *cobra.Command {
	var (
		filter audit.Filter
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "List writes made to the box through the API and MQTT",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := bootstrap(cmd.Context(), gf)
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := audit.NewSQLiteRepository(a.db).List(cmd.Context(), filter)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), result)
			}
			printAudit(cmd.OutOrStdout(), result)
			return nil
		},
	}
	cmd.Flags().StringVar(&filter.Action, "action", "", "Only entries with this action, e.g. set_state")
	cmd.Flags().StringVar(&filter.EntityID, "entity", "", "Only entries for this service, tag or channel id")
	cmd.Flags().StringVar(&filter.Source, "source", "", "Only entries from api or mqtt")
	cmd.Flags().IntVarP(&filter.Limit, "limit", "n", 20, "Maximum entries to show")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of a table")
	return cmd
}

func printAudit(w io.Writer, result *audit.ListResult) {
	if len(result.Logs) == 0 {
		fmt.Fprintln(w, "No audit entries.")
		return
	}

	rows := make([][]string, 0, len(result.Logs))
	for _, l := range result.Logs {
		rows = append(rows, []string{
			l.CreatedAt.Local().Format(time.DateTime),
			l.Source,
			l.Action,
			orDash(l.EntityType + " " + l.EntityID),
		})
	}
	fmt.Fprintln(w, renderTable([]string{"TIME", "SOURCE", "ACTION", "TARGET"}, rows))
	if result.Total > len(result.Logs) {
		fmt.Fprintf(w, "%d of %d entries\n", len(result.Logs), result.Total)
	}
}
