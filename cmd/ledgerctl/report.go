package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"churchledger/internal/aggregate"
	"churchledger/internal/archive"
	"churchledger/internal/report"
	"churchledger/internal/services"
)

func (a *app) reportCmd() *cobra.Command {
	var (
		recordID   string
		format     string
		outDir     string
		attendance string
		upload     bool
	)
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Render a service record report to a file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			mode, err := aggregate.ParseAttendanceMode(attendance)
			if err != nil {
				return err
			}
			renderer, err := report.RendererFor(format)
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

			rec, err := repo.GetRecord(ctx, recordID)
			if err != nil {
				return fmt.Errorf("load record: %w", err)
			}
			dir := services.NewDirectory(repo, services.WithDirectoryLogger(a.logger))
			svc, err := dir.GetService(ctx, rec.ServiceID)
			if err != nil {
				return fmt.Errorf("load service: %w", err)
			}
			branchName, err := dir.BranchName(ctx, rec.BranchID)
			if err != nil {
				return fmt.Errorf("load branch: %w", err)
			}

			doc, err := report.Compile(svc, rec, branchName, catalog, mode)
			if err != nil {
				return err
			}
			path := filepath.Join(outDir, report.FileName(doc, renderer.Extension()))
			if err := writeReport(ctx, renderer, doc, path); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)

			if upload {
				location, err := a.archiveReport(ctx, rec.BranchID, path, renderer.ContentType())
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), location)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&recordID, "record", "", "service record ID")
	cmd.Flags().StringVar(&format, "format", "pdf", "output format: pdf, xlsx or html")
	cmd.Flags().StringVar(&outDir, "out", ".", "output directory")
	cmd.Flags().StringVar(&attendance, "attendance", a.cfg.AttendanceTotalMode, "attendance total mode: core or all")
	cmd.Flags().BoolVar(&upload, "archive", false, "also store the file in REPORT_ARCHIVE")
	_ = cmd.MarkFlagRequired("record")
	return cmd
}

func writeReport(ctx context.Context, r report.Renderer, doc report.Document, path string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	if err := r.Render(ctx, doc, f); err != nil {
		return fmt.Errorf("render %s: %w", path, err)
	}
	return nil
}

func (a *app) archiveReport(ctx context.Context, branchID, path, contentType string) (string, error) {
	store, err := archive.Open(ctx, a.cfg.ReportArchive, a.logger)
	if err != nil {
		return "", err
	}
	defer store.Close()
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return store.Save(ctx, branchID+"/"+filepath.Base(path), contentType, data)
}
