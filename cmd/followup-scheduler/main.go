// cmd/followup-scheduler/main.go
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "followup-scheduler",
	Short: "Lead follow-up orchestration",
	Long: `followup-scheduler decides when and how to follow up with leads,
keeps the approved WhatsApp template count under the account limit and
delivers due follow-ups on a timer.`,
	SilenceUsage: true,
}

func main() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default: ./configs/config.yaml)")
	rootCmd.AddCommand(serveCmd, runOnceCmd, runJobCmd, statusCmd, enforceQuotaCmd)

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
