package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"thumbcache/internal/resolver"
)

func newResolveCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <path>...",
		Short: "Find where a path lives now",
		Long:  "Print the existing equivalent of each path, searching mounted volumes when the path's own volume was remounted under another name.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.service(nil)
			if err != nil {
				return err
			}
			defer svc.Close()

			var missing int
			for _, p := range args {
				resolved, err := svc.ResolvePath(p)
				switch {
				case errors.Is(err, resolver.ErrNotFound):
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: not found\n", p)
					missing++
				case err != nil:
					return err
				default:
					fmt.Fprintln(cmd.OutOrStdout(), resolved)
				}
			}
			if missing > 0 {
				return fmt.Errorf("%d of %d paths not found", missing, len(args))
			}
			return nil
		},
	}
}
