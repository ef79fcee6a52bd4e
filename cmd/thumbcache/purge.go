package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newPurgeCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "purge <dir>...",
		Short: "Delete every stored preview of a directory",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.service(nil)
			if err != nil {
				return err
			}
			defer svc.Close()

			for _, dir := range args {
				if err := svc.PurgeDirectory(cmd.Context(), dir); err != nil {
					return fmt.Errorf("purge %s: %w", dir, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "purged %s\n", dir)
			}
			return nil
		},
	}
}
