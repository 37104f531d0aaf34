package cmd

import (
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the scheduler's current load",
	Run: func(cmd *cobra.Command, args []string) {
		client := clientFromConfig()
		resp, err := client.Status()
		if err != nil {
			printAPIError(cmd, "status failed", err)
			return
		}

		cmd.Printf("Queue length:   %d\n", resp.QueueLength)
		cmd.Printf("Running length: %d\n", resp.RunningLength)
		cmd.Printf("Total used:     %d\n", resp.TotalUsed)
		cmd.Printf("Num slaves:     %d\n", resp.NumSlaves)
		cmd.Printf("Offers:         %d\n", resp.Offers)
		cmd.Printf("Version:        %s\n", resp.Version)
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
