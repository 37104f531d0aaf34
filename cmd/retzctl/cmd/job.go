package cmd

import (
	"retz/pkg/api"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var jobCmd = &cobra.Command{
	Use:   "job",
	Short: "Submit, inspect, and kill jobs",
}

var jobSubmitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Schedule a new job",
	Long: `Schedule a new job against a previously loaded application.

Example:
  retzctl job submit --appid myapp --cmd "java -jar job.jar" --cpu 1 --mem 512`,
	Run: func(cmd *cobra.Command, args []string) {
		flags := cmd.Flags()
		appid, _ := flags.GetString("appid")
		command, _ := flags.GetString("cmd")
		cpu, _ := flags.GetInt("cpu")
		mem, _ := flags.GetInt("mem")
		priority, _ := flags.GetInt("priority")
		tags, _ := flags.GetStringSlice("tag")

		if appid == "" || command == "" {
			cmd.Println("Error: --appid and --cmd are required")
			return
		}

		client := clientFromConfig()
		resp, err := client.ScheduleJob(api.ScheduleJobRequest{
			Appid:    appid,
			Cmd:      command,
			Cpu:      cpu,
			MemMB:    mem,
			Priority: priority,
			Tags:     tags,
		})
		if err != nil {
			printAPIError(cmd, "submit failed", err)
			return
		}

		cmd.Printf("Job scheduled: %d\n", resp.ID)
	},
}

var jobStatusCmd = &cobra.Command{
	Use:   "status <job-id>",
	Short: "Show a job's current state",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client := clientFromConfig()
		job, err := client.GetJob(args[0])
		if err != nil {
			printAPIError(cmd, "status failed", err)
			return
		}

		cmd.Printf("ID:       %d\n", job.ID)
		cmd.Printf("Appid:    %s\n", job.Appid)
		cmd.Printf("State:    %s\n", job.State)
		cmd.Printf("Priority: %d\n", job.Priority)
		cmd.Printf("Retry:    %d\n", job.Retry)
		if job.TaskID != nil {
			cmd.Printf("TaskID:   %s\n", *job.TaskID)
		}
	},
}

var jobListCmd = &cobra.Command{
	Use:   "list",
	Short: "List jobs in a given state",
	Run: func(cmd *cobra.Command, args []string) {
		flags := cmd.Flags()
		state, _ := flags.GetString("state")
		tag, _ := flags.GetString("tag")

		if state == "" {
			cmd.Println("Error: --state is required")
			return
		}

		client := clientFromConfig()
		resp, err := client.ListJobs(state, tag)
		if err != nil {
			printAPIError(cmd, "list failed", err)
			return
		}

		for _, j := range resp.Jobs {
			cmd.Printf("%d\t%s\t%s\n", j.ID, j.Appid, j.State)
		}
	},
}

var jobKillCmd = &cobra.Command{
	Use:   "kill <job-id>",
	Short: "Kill a running or queued job",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client := clientFromConfig()
		resp, err := client.KillJob(args[0])
		if err != nil {
			printAPIError(cmd, "kill failed", err)
			return
		}
		cmd.Printf("Kill requested for job %d\n", resp.ID)
	},
}

func clientFromConfig() *Client {
	return NewClient(viper.GetString("url"), viper.GetString("key_id"), viper.GetString("secret"))
}

func printAPIError(cmd *cobra.Command, prefix string, err error) {
	if apiErr, ok := err.(*APIError); ok {
		cmd.Printf("%s (%d): %s\n", prefix, apiErr.StatusCode, apiErr.Message)
		return
	}
	cmd.Printf("%s: %v\n", prefix, err)
}

func init() {
	submitFlags := jobSubmitCmd.Flags()
	submitFlags.String("appid", "", "Application id to run under (required)")
	submitFlags.String("cmd", "", "Command line to execute (required)")
	submitFlags.Int("cpu", 1, "CPU shares to request")
	submitFlags.Int("mem", 128, "Memory in MB to request")
	submitFlags.Int("priority", api.PriorityNormal, "Scheduling priority, lower runs first")
	submitFlags.StringSlice("tag", nil, "Tags to attach to the job")

	listFlags := jobListCmd.Flags()
	listFlags.String("state", "", "Job state to filter by (required)")
	listFlags.String("tag", "", "Tag to filter by")

	jobCmd.AddCommand(jobSubmitCmd, jobStatusCmd, jobListCmd, jobKillCmd)
	rootCmd.AddCommand(jobCmd)
}
