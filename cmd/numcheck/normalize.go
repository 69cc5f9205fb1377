package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"numcheck/internal/phone"
)

func newNormalizeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "normalize <number>...",
		Short: "Print the canonical form of each number",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := opts.load(cmd)
			if err != nil {
				return err
			}
			n, err := phone.NewNormalizer(cfg.Phone.CountryCode, cfg.Phone.TrunkPrefix)
			if err != nil {
				return err
			}
			for _, raw := range args {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", raw, n.Normalize(raw))
			}
			return nil
		},
	}
}
