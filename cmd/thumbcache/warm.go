package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"thumbcache/internal/pipeline"
)

func newWarmCommand(a *app) *cobra.Command {
	var quiet bool

	cmd := &cobra.Command{
		Use:   "warm [dir...]",
		Short: "Generate missing and stale previews",
		Long:  "Generate previews for every image in each directory, reusing stored previews that are still current. Without arguments the configured root is warmed.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				args = []string{a.cfg.Root}
			}
			a.startCodec()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			svc, err := a.service(nil)
			if err != nil {
				return err
			}
			defer svc.Close()

			out := cmd.OutOrStdout()
			for _, dir := range args {
				if err := warm(ctx, out, svc, dir, quiet); err != nil {
					return err
				}
				if ctx.Err() != nil {
					return ctx.Err()
				}
			}
			return nil
		},
	}

	cmd.Flags().Int("workers", 0, "concurrent decoders (0 sizes from CPU count)")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "print only the summary")
	return cmd
}

type starter interface {
	StartPipeline(ctx context.Context, dir string, listing []pipeline.StatEntry) (*pipeline.Run, error)
}

func warm(ctx context.Context, out io.Writer, svc starter, dir string, quiet bool) error {
	run, err := svc.StartPipeline(ctx, dir, nil)
	if err != nil {
		return fmt.Errorf("warm %s: %w", dir, err)
	}

	var done pipeline.Event
	for ev := range run.Events() {
		if ev.Kind == pipeline.Done {
			done = ev
			continue
		}
		if quiet {
			continue
		}
		if ev.Err != nil {
			fmt.Fprintf(out, "%-12s %s: %v\n", ev.Status, ev.Name, ev.Err)
		} else {
			fmt.Fprintf(out, "%-12s %s\n", ev.Status, ev.Name)
		}
	}

	s := done.Stats
	fmt.Fprintf(out, "%s: %d files, %d cached, %d generated, %d renamed, %d skipped, %d errors in %v",
		run.Dir(), s.Total, s.Hits, s.Misses+s.Stale, s.Renamed, s.PassThrough, s.Errors, s.Duration)
	switch {
	case done.Cancelled:
		fmt.Fprint(out, " (cancelled)")
	case s.Degraded:
		fmt.Fprint(out, " (store unavailable, previews not saved)")
	}
	fmt.Fprintln(out)
	return nil
}
