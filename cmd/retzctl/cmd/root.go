package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "retzctl",
	Short: "retzctl is a command line tool for interacting with the Retz scheduler",
	Long: `retzctl is the command-line interface for Retz, a Mesos-backed batch job
scheduler. It talks to the controller's HTTP API to load applications,
schedule jobs, and inspect scheduler state.

Common workflows:

  Load an application (a reusable execution environment):
    retzctl app load --appid myapp --files s3://bucket/job.jar

  Submit a job:
    retzctl job submit --appid myapp --cmd "java -jar job.jar" --cpu 1 --mem 512

  Check a job's state:
    retzctl job status <job-id>

  List queued jobs:
    retzctl job list --state QUEUED

  Kill a running job:
    retzctl job kill <job-id>

Configuration:
  Set the controller endpoint and credentials via environment variables
  or a config file:
    RETZ_URL      Controller URL (default: http://localhost:6161)
    RETZ_KEY_ID   Basic-Auth key id
    RETZ_SECRET   Basic-Auth secret`,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}

		viper.AddConfigPath(home)
		viper.SetConfigName(".retzctl")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("RETZ")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Println("Using config file:", viper.ConfigFileUsed())
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.retzctl.yaml)")

	rootCmd.PersistentFlags().String("url", "http://localhost:6161", "Retz controller URL")
	viper.BindPFlag("url", rootCmd.PersistentFlags().Lookup("url"))

	rootCmd.PersistentFlags().String("key-id", "", "Basic-Auth key id")
	viper.BindPFlag("key_id", rootCmd.PersistentFlags().Lookup("key-id"))

	rootCmd.PersistentFlags().String("secret", "", "Basic-Auth secret")
	viper.BindPFlag("secret", rootCmd.PersistentFlags().Lookup("secret"))
}
