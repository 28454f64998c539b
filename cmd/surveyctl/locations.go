package main

import (
	"fmt"
	"os"

	"agrosurvey/internal/schema"

	"github.com/spf13/cobra"
)

func newLocationsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "locations",
		Short: "Maintain the comarca/municipio spreadsheet",
	}
	cmd.AddCommand(newLocationsCheckCmd(), newLocationsTemplateCmd())
	return cmd
}

func newLocationsCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check <file.xlsx>",
		Short: "Validate a taxonomy spreadsheet without loading it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tax, report, err := schema.LoadTaxonomyExcelFile(args[0])
			out := cmd.OutOrStdout()
			if report != nil {
				fmt.Fprintf(out, "rows=%d ok=%d failed=%d comarcas=%d\n", report.TotalRows, report.SuccessRows, report.FailedRows, report.Comarcas)
				for _, re := range report.Errors {
					fmt.Fprintf(out, "  row %d: %s\n", re.Row, re.Error)
				}
			}
			if err != nil {
				return err
			}
			for _, c := range tax.Comarcas {
				fmt.Fprintf(out, "%s (%s): %d municipios\n", c.ID, c.Name, len(c.Municipios))
			}
			if report.FailedRows > 0 {
				return fmt.Errorf("%d rows failed", report.FailedRows)
			}
			return nil
		},
	}
}

func newLocationsTemplateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "template <out.xlsx>",
		Short: "Write the built-in taxonomy as an editable spreadsheet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := schema.ExportTaxonomyExcel(schema.DefaultTaxonomy())
			if err != nil {
				return err
			}
			if err := os.WriteFile(args[0], data, 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", args[0])
			return nil
		},
	}
}
