package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"thumbcache/internal/browser"
	"thumbcache/internal/codec"
	"thumbcache/internal/filesystem"
	"thumbcache/internal/logging"
	"thumbcache/internal/memory"
	"thumbcache/internal/metrics"
	"thumbcache/internal/resolver"
	"thumbcache/internal/startup"
)

// app carries the state shared by all subcommands.
type app struct {
	configFile string
	cfg        *startup.Config
	memory     memory.ConfigResult
	vips       bool
}

func newRootCommand() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:           "thumbcache",
		Short:         "Per-directory preview cache for image browsers",
		Long:          "thumbcache keeps a small SQLite store of JPEG previews, ratings and colour tags inside each browsed directory, and relocates paths whose volume was remounted under another name.",
		Version:       startup.Version,
		SilenceErrors: true,
		SilenceUsage:  true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			a.shutdown()
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&a.configFile, "config", "", "config file (YAML, TOML or JSON)")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("log-file", "", "also write logs to this rotating file")

	cmd.AddCommand(
		newWarmCommand(a),
		newResolveCommand(a),
		newRateCommand(a),
		newPurgeCommand(a),
		newServeCommand(a),
		newVersionCommand(),
	)
	return cmd
}

// setup loads configuration and sets up process-wide state.
func (a *app) setup(cmd *cobra.Command) error {
	v, err := startup.NewViper(a.configFile)
	if err != nil {
		return err
	}

	binds := map[string]string{
		"log.level":  "log-level",
		"log.file":   "log-file",
		"workers":    "workers",
		"serve.addr": "addr",
	}
	for key, name := range binds {
		if f := cmd.Flags().Lookup(name); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return fmt.Errorf("failed to bind flag %s: %w", name, err)
			}
		}
	}

	cfg, err := startup.LoadConfig(v)
	if err != nil {
		return err
	}
	if fc, ok := cfg.LogFileConfig(); ok {
		if err := logging.EnableFile(fc); err != nil {
			return err
		}
	}

	a.cfg = cfg
	a.memory = memory.ConfigureFromEnv()
	filesystem.SetObserver(metrics.NewFilesystemObserver())
	metrics.InitializeMetrics()

	mounts := resolver.MountTable{VolumesDir: cfg.VolumesDir}
	if vols, err := mounts.Volumes(); err == nil {
		filesystem.SetDefaultVolumeLabels(filesystem.NewVolumeLabels(volumeLabels(vols)))
	} else {
		logging.Debug("Cannot list volumes for metric labels: %v", err)
	}
	return nil
}

// volumeLabels names each volume by its last path element, falling back to
// the full path when two volumes share a name.
func volumeLabels(volumes []string) map[string]string {
	labels := make(map[string]string, len(volumes))
	for _, v := range volumes {
		name := filepath.Base(v)
		if name == "/" || name == "." {
			name = "root"
		}
		if _, taken := labels[name]; taken {
			name = v
		}
		labels[name] = v
	}
	return labels
}

// startCodec starts libvips for commands that decode images.
func (a *app) startCodec() {
	if err := codec.InitVips(); err != nil {
		logging.Warn("libvips unavailable: %v", err)
		return
	}
	a.vips = true
}

func (a *app) shutdown() {
	if a.vips {
		codec.ShutdownVips()
	}
	if err := logging.Close(); err != nil {
		logging.Warn("failed to close log file: %v", err)
	}
}

// service builds a browser service from the loaded configuration.
func (a *app) service(monitor *memory.Monitor) (*browser.Service, error) {
	svc, err := browser.New(a.cfg.BrowserOptions(monitor))
	if err != nil {
		return nil, fmt.Errorf("failed to create service: %w", err)
	}
	return svc, nil
}
