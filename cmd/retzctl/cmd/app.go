package cmd

import (
	"retz/pkg/api"

	"github.com/spf13/cobra"
)

var appCmd = &cobra.Command{
	Use:   "app",
	Short: "Load and inspect applications",
}

var appLoadCmd = &cobra.Command{
	Use:   "load",
	Short: "Register an application",
	Long: `Register an application: a named, reusable execution environment
that jobs reference by appid.

Example:
  retzctl app load --appid myapp --files s3://bucket/job.jar`,
	Run: func(cmd *cobra.Command, args []string) {
		flags := cmd.Flags()
		appid, _ := flags.GetString("appid")
		files, _ := flags.GetStringSlice("files")

		if appid == "" {
			cmd.Println("Error: --appid is required")
			return
		}

		client := clientFromConfig()
		resp, err := client.LoadApplication(api.LoadApplicationRequest{
			Appid: appid,
			Files: files,
		})
		if err != nil {
			printAPIError(cmd, "load failed", err)
			return
		}

		cmd.Printf("Application loaded: %s (owner %s)\n", resp.Appid, resp.Owner)
	},
}

var appListCmd = &cobra.Command{
	Use:   "list",
	Short: "List applications owned by the caller",
	Run: func(cmd *cobra.Command, args []string) {
		client := clientFromConfig()
		apps, err := client.ListApplications()
		if err != nil {
			printAPIError(cmd, "list failed", err)
			return
		}
		for _, a := range apps {
			cmd.Printf("%s\t%s\n", a.Appid, a.Owner)
		}
	},
}

func init() {
	loadFlags := appLoadCmd.Flags()
	loadFlags.String("appid", "", "Application id (required)")
	loadFlags.StringSlice("files", nil, "Files to stage into the job's working directory")

	appCmd.AddCommand(appLoadCmd, appListCmd)
	rootCmd.AddCommand(appCmd)
}
