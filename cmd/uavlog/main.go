// uavlog
//
// A UAV flight-log analyzer. Upload an ArduPilot DataFlash log, then ask
// questions about the flight.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jxucoder/uavlog/internal/logging"
	"github.com/jxucoder/uavlog/pkg/apiclient"
)

var (
	version   = "dev"
	serverURL string
)

var rootCmd = &cobra.Command{
	Use:   "uavlog",
	Short: "uavlog - UAV flight log analyzer",
	Long: `uavlog parses ArduPilot DataFlash logs and answers questions about them.

  uavlog serve                            Start the server
  uavlog upload 00000042.BIN              Upload and parse a flight log
  uavlog flights                          List uploaded flights
  uavlog flight <id>                      Show one flight
  uavlog chat "any vibration issues?" --flight <id>
  uavlog config set OPENAI_API_KEY sk-... Store a setting`,
	Version:      version,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.Init(logging.Config{
			Level:  envOr("UAVLOG_LOG_LEVEL", "warn"),
			Format: "console",
			Output: cmd.ErrOrStderr(),
		})
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", envOr("UAVLOG_SERVER", apiclient.DefaultBaseURL), "uavlog API base URL")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
