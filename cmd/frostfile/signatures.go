package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSignaturesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "signatures",
		Short: "Validate the signature source and report its size",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := a.loadSignatures(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d signatures loaded from %s\n", db.Len(), db.Source())
			return nil
		},
	}
}
