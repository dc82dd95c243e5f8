package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/medicalexcom/avidiatech-match/internal/supplier"
)

var suppliersCmd = &cobra.Command{
	Use:   "suppliers",
	Short: "Validate the supplier table and list its suppliers",
	RunE: func(cmd *cobra.Command, args []string) error {
		tbl, err := supplier.LoadTable(cfg.Suppliers.Path)
		if err != nil {
			return err
		}
		return printSuppliers(cmd.OutOrStdout(), tbl)
	},
}

func printSuppliers(w io.Writer, tbl *supplier.Table) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tSTRATEGY\tALLOWED DOMAINS")
	for _, key := range tbl.Keys() {
		s, _ := tbl.Get(key)
		domains := strings.Join(s.AllowedDomains, ",")
		if domains == "" {
			domains = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", key, s.Strategy, domains)
	}
	return tw.Flush()
}

func init() {
	rootCmd.AddCommand(suppliersCmd)
}
