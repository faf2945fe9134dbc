package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/jxucoder/uavlog/pkg/apiclient"
)

var chatFlight string

var uploadCmd = &cobra.Command{
	Use:   "upload <file>",
	Short: "Upload a .bin or .log flight log",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		resp, err := newClient().UploadFlightFile(cmd.Context(), filepath.Base(args[0]), f)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), resp)
	},
}

var chatCmd = &cobra.Command{
	Use:   "chat <message>",
	Short: "Ask a question, optionally about one flight",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var flightID *string
		if chatFlight != "" {
			flightID = &chatFlight
		}
		resp, err := newClient().SendChatMessage(cmd.Context(), args[0], flightID)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), resp)
	},
}

var flightsCmd = &cobra.Command{
	Use:   "flights",
	Short: "List uploaded flights",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := newClient().GetFlights(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), resp)
	},
}

var flightCmd = &cobra.Command{
	Use:   "flight <id>",
	Short: "Show the full detail of one flight",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := newClient().GetFlightDetails(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), resp)
	},
}

func init() {
	chatCmd.Flags().StringVar(&chatFlight, "flight", "", "flight ID the question is about")

	rootCmd.AddCommand(uploadCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(flightsCmd)
	rootCmd.AddCommand(flightCmd)
}

func newClient() *apiclient.Client {
	return apiclient.New(serverURL)
}

// printJSON writes v as indented JSON. Plain strings are printed as is.
func printJSON(w io.Writer, v any) error {
	if s, ok := v.(string); ok {
		_, err := fmt.Fprintln(w, s)
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding response: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
