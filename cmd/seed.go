/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/slapcommerce/backoffice/internal/bootstrap"
	"github.com/slapcommerce/backoffice/internal/config"
)

var seedCollections int
var seedProductsPer int

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed a sample catalog through the command path",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			fmt.Fprintln(os.Stderr, "config error:", err)
			os.Exit(1)
		}
		if err := bootstrap.Seed(cmd.Context(), cfg, seedCollections, seedProductsPer); err != nil {
			fmt.Fprintln(os.Stderr, "seed error:", err)
			os.Exit(1)
		}
	},
}

func init() {
	seedCmd.Flags().IntVar(&seedCollections, "collections", 5, "number of collections to seed")
	seedCmd.Flags().IntVar(&seedProductsPer, "products", 10, "products per collection")
	rootCmd.AddCommand(seedCmd)
}
