/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/slapcommerce/backoffice/internal/bootstrap"
	"github.com/slapcommerce/backoffice/internal/config"
)

var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "Run the due-schedule poller",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		cfg, err := config.Load(cfgFile)
		if err != nil {
			fmt.Fprintln(os.Stderr, "config error:", err)
			os.Exit(1)
		}
		if err := bootstrap.RunScheduler(ctx, cfg); err != nil {
			fmt.Fprintln(os.Stderr, "scheduler error:", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(schedulerCmd)
}
