package main

import (
	"context"
	"encoding/json"

	"github.com/spf13/cobra"

	"numcheck/internal/app"
	"numcheck/internal/ledger"
	"numcheck/pkg/domain"
)

type statsOutput struct {
	Ledger  ledger.Stats      `json:"ledger"`
	Session *ledger.UserStats `json:"session,omitempty"`
}

func newStatsCmd(opts *rootOptions) *cobra.Command {
	var sessionKey string
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print ledger totals per status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, log, err := opts.load(cmd)
			if err != nil {
				return err
			}
			a, err := app.Build(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer a.Close(context.WithoutCancel(ctx))

			out := statsOutput{Ledger: a.Store.Stats(ctx)}
			if sessionKey != "" {
				key, err := domain.ParseSessionKey(sessionKey)
				if err != nil {
					return err
				}
				if us, ok := a.Store.UserStats(ctx, key); ok {
					out.Session = &us
				}
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
	cmd.Flags().StringVar(&sessionKey, "session", "", "also print usage stats for this session key")
	return cmd
}
