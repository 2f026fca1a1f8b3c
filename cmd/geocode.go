package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
)

// geocodeCmd resolves a single address through the cache/Nominatim/Google
// chain, useful for checking coverage before a valuation.
var geocodeCmd = &cobra.Command{
	Use:   "geocode <address>",
	Short: "Geocode an address and print the result",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Close()

		result, err := e.Geocoder.Geocode(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

func init() {
	rootCmd.AddCommand(geocodeCmd)
}
