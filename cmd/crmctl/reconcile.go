package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/spec-kit/crm-service/internal/app"
	"github.com/spec-kit/crm-service/internal/service"
)

func reconcileCmd() *cobra.Command {
	var (
		apply bool
		limit int
	)
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Find client accounts left behind by failed qualifications",
		Long: `Lists client accounts whose lead does not point back at them.

Without --apply nothing is changed. With --apply each orphan is linked to its lead when
the lead can still be qualified; leads that moved on are reported and left alone.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withContainer(cmd.Context(), func(c *app.Container) error {
				report, err := c.Reconciliation.Reconcile(cmd.Context(), apply, limit)
				if err != nil {
					return err
				}
				printReport(cmd, report)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&apply, "apply", false, "link linkable orphans instead of only reporting them")
	cmd.Flags().IntVarP(&limit, "limit", "n", 100, "maximum orphans to inspect")
	return cmd
}

func printReport(cmd *cobra.Command, report *service.ReconciliationReport) {
	out := cmd.OutOrStdout()
	if len(report.Orphans) == 0 {
		fmt.Fprintln(out, "no orphaned clients")
		return
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CLIENT\tLEAD\tOUTCOME\tDETAIL")
	for _, orphan := range report.Orphans {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", orphan.ClientID, orphan.LeadID, orphan.Outcome, orphan.Detail)
	}
	_ = w.Flush()

	if report.Applied {
		fmt.Fprintf(out, "linked %d, unlinkable %d, failed %d\n",
			report.Count(service.OrphanLinked), report.Count(service.OrphanUnlinkable), report.Count(service.OrphanFailed))
	} else {
		fmt.Fprintf(out, "dry run: %d linkable; rerun with --apply to link them\n", report.Count(service.OrphanLinkable))
	}
}
