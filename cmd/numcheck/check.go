package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"numcheck/internal/app"
	"numcheck/internal/batch"
	"numcheck/internal/export"
	"numcheck/internal/filter"
	"numcheck/pkg/domain"
)

type checkOptions struct {
	session    string
	file       string
	retryHours int
	filter     string
	exportFmt  string
	quiet      bool
}

func newCheckCmd(root *rootOptions) *cobra.Command {
	opts := &checkOptions{}
	cmd := &cobra.Command{
		Use:   "check [number]...",
		Short: "Run one verification batch and print the results",
		Long: `Checks every number given as an argument or read from --file (.txt or .csv)
in input order, updates the ledger and prints one line per number.
With --export the filtered results are also written to the export directory.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd, root, opts, args)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.session, "session", "cli", "session key used for usage statistics")
	f.StringVar(&opts.file, "file", "", "read numbers from a .txt or .csv file")
	f.IntVar(&opts.retryHours, "retry-hours", 0, "retry window in hours (default from config)")
	f.StringVar(&opts.filter, "filter", "all", "result filter: all, on, off, retry, both_and, both_or")
	f.StringVar(&opts.exportFmt, "export", "", "also export results as csv or xlsx")
	f.BoolVarP(&opts.quiet, "quiet", "q", false, "suppress progress output")
	return cmd
}

func runCheck(cmd *cobra.Command, root *rootOptions, opts *checkOptions, args []string) error {
	ctx := cmd.Context()
	if len(args) == 0 && opts.file == "" {
		return fmt.Errorf("give numbers as arguments or with --file")
	}
	key, err := domain.ParseSessionKey(opts.session)
	if err != nil {
		return err
	}
	spec, err := filter.Parse(opts.filter)
	if err != nil {
		return err
	}
	var format export.Format
	if opts.exportFmt != "" {
		if format, err = export.ParseFormat(opts.exportFmt); err != nil {
			return err
		}
	}

	cfg, log, err := root.load(cmd)
	if err != nil {
		return err
	}
	a, err := app.Build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(context.WithoutCancel(ctx)); cerr != nil {
			log.Error("closing ledger", "error", cerr)
		}
	}()

	if _, err := a.Sessions.Start(ctx, key, strings.Join(args, "\n")); err != nil {
		return err
	}
	if opts.file != "" {
		fh, err := os.Open(opts.file)
		if err != nil {
			return err
		}
		_, err = a.Sessions.SubmitFile(ctx, key, filepath.Base(opts.file), fh)
		fh.Close()
		if err != nil {
			return err
		}
	}

	retry := ""
	if opts.retryHours != 0 {
		retry = strconv.Itoa(opts.retryHours)
	}
	stderr := cmd.ErrOrStderr()
	res, err := a.Sessions.SubmitRetry(ctx, key, retry, func(p batch.Progress) {
		if !opts.quiet {
			fmt.Fprintf(stderr, "checked %d/%d (%d%%) on=%d off=%d\n",
				p.Processed, p.Total, p.Percent, p.OnService, p.NotOnService)
		}
	})
	if err != nil {
		return err
	}

	if _, err := a.Sessions.SetFilter(ctx, key, spec); err != nil {
		return err
	}
	results, _, err := a.Sessions.Results(ctx, key, false)
	if err != nil {
		return err
	}
	if err := printResults(cmd, results); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "run %s: %d checked, %d on service, %d not on service, %d invalid, %d errors (retry %dh)\n",
		res.RunID, res.Summary.Total, res.Summary.OnService, res.Summary.NotOnService,
		res.Summary.Invalid, res.Summary.Error, res.RetryHours)

	if format == "" {
		return nil
	}
	artifact, err := a.Sessions.Export(ctx, key, false, format)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.Export.OutputDir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(cfg.Export.OutputDir, artifact.Filename)
	if err := os.WriteFile(path, artifact.Data, 0o644); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "exported %d rows to %s\n", artifact.Rows, path)
	return nil
}

func printResults(cmd *cobra.Command, results []domain.CheckResult) error {
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(export.Columns, "\t"))
	for _, r := range results {
		next := "-"
		if r.NextRetry != nil {
			next = r.NextRetry.Format(export.TimeLayout)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.Phone, r.Status, r.CheckTime.Format(export.TimeLayout), next)
	}
	return tw.Flush()
}
