package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var exportOutput string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export all fines as CSV",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, closeStore, err := openFineStore()
		if err != nil {
			return err
		}
		defer closeStore()

		out, err := store.ExportCSV(cmd.Context())
		if err != nil {
			return err
		}

		if exportOutput == "" || exportOutput == "-" {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), out)
			return err
		}
		if err := os.WriteFile(exportOutput, []byte(out), 0o644); err != nil {
			return fmt.Errorf("failed to write export: %w", err)
		}
		log.Info().Str("file", exportOutput).Msg("fines exported")
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Output file (default: stdout)")
	rootCmd.AddCommand(exportCmd)
}
