package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var suppressCmd = &cobra.Command{
	Use:   "suppress <email>",
	Short: "Permanently exclude an address from campaigns",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.Suppress(ctx, args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Suppressed %s\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(suppressCmd)
}
