package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"custody/config"
)

var (
	configPath    string
	listen        string
	metricsListen string

	rootCmd = &cobra.Command{
		Use:          "custody-server",
		Short:        "Pooled custody vault",
		SilenceUsage: true,
		RunE:         runFunc,
	}
)

func init() {
	cobra.EnablePrefixMatching = true
	rootCmd.PersistentFlags().StringVar(
		&configPath,
		"config",
		"custody.yaml",
		"path to the YAML configuration",
	)
	rootCmd.Flags().StringVar(&listen, "listen", "", "gRPC listen address, overrides server.listen")
	rootCmd.Flags().StringVar(&metricsListen, "metrics-listen", "", "metrics listen address, overrides server.metrics_listen")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "custody-server failed %v\n", err)
		os.Exit(1)
	}
}

func runFunc(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if listen != "" {
		cfg.Server.Listen = listen
	}
	if metricsListen != "" {
		cfg.Server.MetricsListen = metricsListen
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return run(ctx, cfg)
}
