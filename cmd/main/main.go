package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"catalog/taxonomy/internal/config"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "taxonomy",
		Short:        "Catalog taxonomy console core",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().String("config", "", "Path to config file (default ./config.yaml)")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the taxonomy console API",
		RunE:  runServe,
	}

	treeCmd := &cobra.Command{
		Use:   "tree",
		Short: "Load and print the taxonomy tree",
		RunE:  runTree,
	}
	treeCmd.Flags().Bool("json", false, "Print the tree as JSON")

	syncCmd := &cobra.Command{
		Use:   "sync",
		Short: "Mirror the taxonomy into Postgres",
		RunE:  runSync,
	}

	rootCmd.AddCommand(serveCmd, treeCmd, syncCmd)
	return rootCmd
}

// loadConfig reads configuration and applies the log settings.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}

	var cfg *config.Config
	if path != "" {
		cfg, err = config.LoadFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	level, err := log.ParseLevel(cfg.Log.Level)
	if err != nil {
		log.Warnf("⚠️ Unknown log level %q, using info", cfg.Log.Level)
		level = log.InfoLevel
	}
	log.SetLevel(level)
	if cfg.Log.JSON {
		log.SetFormatter(&log.JSONFormatter{})
	}

	log.Info("Configuration loaded successfully")
	return cfg, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
