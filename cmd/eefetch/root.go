package main

import (
	"fmt"

	"github.com/joeshaw/envdecode"
	"github.com/spf13/cobra"

	"github.com/geofactory/eefetch/service/log"
)

var (
	flagUsername string
	flagPassword string
	flagDebug    bool
)

var rootCmd = &cobra.Command{
	Use:   "eefetch",
	Short: "Search and download Landsat and Sentinel-2 scenes",
	Long: `eefetch searches the USGS catalog through the machine-to-machine API and
downloads scenes from the EarthExplorer portal or the S3 mirror.

An EarthExplorer account with M2M access is required. Credentials are taken
from the --username/--password flags or from the EEFETCH_USERNAME and
EEFETCH_PASSWORD environment variables.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if flagDebug {
			log.SetDebug()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagUsername, "username", "u", "", "EarthExplorer username (default $EEFETCH_USERNAME)")
	rootCmd.PersistentFlags().StringVarP(&flagPassword, "password", "p", "", "EarthExplorer password (default $EEFETCH_PASSWORD)")
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "log debug information")
	rootCmd.AddCommand(searchCmd, downloadCmd)
}

type envCredentials struct {
	Username string `env:"EEFETCH_USERNAME,default="`
	Password string `env:"EEFETCH_PASSWORD,default="`
}

// credentials returns the flag values, falling back to the environment
func credentials() (string, string, error) {
	username, password := flagUsername, flagPassword
	if username == "" || password == "" {
		var env envCredentials
		if err := envdecode.Decode(&env); err != nil {
			return "", "", fmt.Errorf("credentials: %w", err)
		}
		if username == "" {
			username = env.Username
		}
		if password == "" {
			password = env.Password
		}
	}
	if username == "" || password == "" {
		return "", "", fmt.Errorf("credentials: set --username/--password or EEFETCH_USERNAME/EEFETCH_PASSWORD")
	}
	return username, password, nil
}
