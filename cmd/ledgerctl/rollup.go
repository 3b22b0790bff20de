package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"churchledger/internal/aggregate"
	"churchledger/internal/config"
	"churchledger/internal/core"
	"churchledger/internal/storage"
)

func (a *app) rollupCmd() *cobra.Command {
	var (
		from, to   string
		branchID   string
		attendance string
		asJSON     bool
	)
	cmd := &cobra.Command{
		Use:   "rollup",
		Short: "Print income and attendance per branch for a period",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fromDate, toDate, err := parseRange(from, to)
			if err != nil {
				return err
			}
			mode, err := aggregate.ParseAttendanceMode(attendance)
			if err != nil {
				return err
			}
			catalog, err := loadCatalog(a.cfg.CatalogFile)
			if err != nil {
				return err
			}

			repo, err := a.openStore()
			if err != nil {
				return err
			}
			defer repo.Close()

			records, err := repo.ListRecords(cmd.Context(), storage.RecordFilter{BranchID: branchID, From: fromDate, To: toDate})
			if err != nil {
				return err
			}
			summary := aggregate.Summarize(fromDate, toDate, records, mode, catalog)

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(summary)
			}
			names := map[string]string{}
			branches, err := repo.ListBranches(cmd.Context())
			if err != nil {
				return err
			}
			for _, b := range branches {
				names[b.ID] = b.Name
			}
			return printSummary(cmd.OutOrStdout(), summary, names, catalog)
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "first service date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&to, "to", "", "last service date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&branchID, "branch", "", "limit to one branch")
	cmd.Flags().StringVar(&attendance, "attendance", a.cfg.AttendanceTotalMode, "attendance total mode: core or all")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func parseRange(from, to string) (core.Date, core.Date, error) {
	var f, t core.Date
	var err error
	if from != "" {
		if f, err = core.ParseDate(from); err != nil {
			return f, t, fmt.Errorf("--from: %w", err)
		}
	}
	if to != "" {
		if t, err = core.ParseDate(to); err != nil {
			return f, t, fmt.Errorf("--to: %w", err)
		}
	}
	if !f.IsZero() && !t.IsZero() && t.Before(f.Time) {
		return f, t, fmt.Errorf("--to %s is before --from %s", to, from)
	}
	return f, t, nil
}

func printSummary(w io.Writer, s core.PeriodSummary, names map[string]string, cat core.Catalog) error {
	ids := make([]string, 0, len(s.Branches))
	for id := range s.Branches {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return names[ids[i]] < names[ids[j]] })

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "BRANCH\tSERVICES\tINCOME\tATTENDANCE\t")
	for _, id := range ids {
		b := s.Branches[id]
		name := names[id]
		if name == "" {
			name = id
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%d\t\n", name, b.ServiceCount, core.FormatAmount(b.TotalIncome, ""), b.AttendanceTotal)
	}
	fmt.Fprintf(tw, "TOTAL\t%d\t%s\t%d\t\n", s.TotalServices, core.FormatAmount(s.TotalAmount, ""), s.TotalPresent)
	if err := tw.Flush(); err != nil {
		return err
	}
	for _, fa := range s.ByFund {
		if _, err := fmt.Fprintf(w, "%s: %s\n", cat.FundLabel(fa.Fund), core.FormatAmount(fa.Amount, cat.Currency)); err != nil {
			return err
		}
	}
	return nil
}

func loadCatalog(path string) (core.Catalog, error) {
	return config.LoadCatalog(path)
}
