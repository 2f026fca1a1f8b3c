package main

import (
	"encoding/json"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/vendocasa/omi-cli/internal/valuation"
)

var (
	valuateSurface  float64
	valuateType     int
	valuateSemester string
	valuateEnhanced bool
	valuateDetails  []string
)

var valuateCmd = &cobra.Command{
	Use:   "valuate <address>",
	Short: "Estimate a property's value from its address",
	Long: "Geocodes the address, resolves its OMI zone and prints the price band and value\n" +
		"estimate as JSON. With --enhanced the band is adjusted by property details\n" +
		"passed as --detail key=value pairs (see the coefficients endpoint for keys).",
	Args: cobra.ExactArgs(1),
	RunE: runValuate,
}

func init() {
	valuateCmd.Flags().Float64Var(&valuateSurface, "surface", 0, "commercial surface in square meters")
	valuateCmd.Flags().IntVar(&valuateType, "property-type", 0, "OMI property type code (default residential)")
	valuateCmd.Flags().StringVar(&valuateSemester, "semester", "", "semester to valuate against, e.g. 2024_S2 (default latest)")
	valuateCmd.Flags().BoolVar(&valuateEnhanced, "enhanced", false, "apply coefficient adjustments from --detail pairs")
	valuateCmd.Flags().StringArrayVar(&valuateDetails, "detail", nil, "property detail as key=value, repeatable")
	rootCmd.AddCommand(valuateCmd)
}

func parseDetails(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	details := make(map[string]string, len(pairs))
	for _, p := range pairs {
		key, value, ok := strings.Cut(p, "=")
		if !ok || key == "" {
			return nil, eris.Errorf("valuate: detail %q is not key=value", p)
		}
		details[key] = value
	}
	return details, nil
}

func runValuate(cmd *cobra.Command, args []string) error {
	e, err := initEnv(cmd.Context())
	if err != nil {
		return err
	}
	defer e.Close()

	req := valuation.Request{
		Address:          args[0],
		Semester:         valuateSemester,
		PropertyTypeCode: valuateType,
		SurfaceM2:        valuateSurface,
	}

	var result any
	if valuateEnhanced {
		details, err := parseDetails(valuateDetails)
		if err != nil {
			return err
		}
		result, err = e.Service.EnhancedValuate(cmd.Context(), valuation.EnhancedRequest{
			Request: req,
			Details: details,
		})
		if err != nil {
			return err
		}
	} else {
		result, err = e.Service.Valuate(cmd.Context(), req)
		if err != nil {
			return err
		}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
