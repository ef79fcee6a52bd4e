package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"
)

func newRateCommand(a *app) *cobra.Command {
	var tag int

	cmd := &cobra.Command{
		Use:   "rate <file> [rating]",
		Short: "Set the rating or colour tag of a file",
		Long:  "Store a rating (0-5) and/or a colour tag (0-9) for a file in its directory's store. The preview is left untouched.",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			tagged := cmd.Flags().Changed("tag")
			if len(args) < 2 && !tagged {
				return errors.New("a rating or --tag is required")
			}

			path, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			dir, name := filepath.Split(path)

			svc, err := a.service(nil)
			if err != nil {
				return err
			}
			defer svc.Close()

			if len(args) == 2 {
				rating, err := strconv.Atoi(args[1])
				if err != nil {
					return fmt.Errorf("invalid rating %q", args[1])
				}
				if err := svc.SetRating(cmd.Context(), dir, name, rating); err != nil {
					return err
				}
			}
			if tagged {
				if err := svc.SetTag(cmd.Context(), dir, name, tag); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&tag, "tag", 0, "colour tag (0 clears)")
	return cmd
}
