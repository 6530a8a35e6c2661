package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var finesCmd = &cobra.Command{
	Use:   "fines",
	Short: "Inspect and settle fine records",
}

var finesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List fines, most recent first",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, closeStore, err := openFineStore()
		if err != nil {
			return err
		}
		defer closeStore()

		records, err := store.List(cmd.Context())
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No fines recorded.")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "ID\tPLATE\tSTATUS\tEVIDENCE\tCREATED")
		fmt.Fprintln(w, "--\t-----\t------\t--------\t-------")
		for _, r := range records {
			evidence := "no"
			if len(r.Evidence) > 0 {
				evidence = fmt.Sprintf("%d KB", (len(r.Evidence)+1023)/1024)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", r.ID, r.Plate, r.Status, evidence, r.CreatedAt.Local().Format("2006-01-02 15:04:05"))
		}
		return w.Flush()
	},
}

var finesPayCmd = &cobra.Command{
	Use:   "pay <id>",
	Short: "Mark a fine as paid",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, closeStore, err := openFineStore()
		if err != nil {
			return err
		}
		defer closeStore()

		rec, err := store.MarkPaid(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s (%s) marked %s\n", rec.ID, rec.Plate, rec.Status)
		return nil
	},
}

func init() {
	finesCmd.AddCommand(finesListCmd, finesPayCmd)
	rootCmd.AddCommand(finesCmd)
}
