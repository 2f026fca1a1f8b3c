package main

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vendocasa/omi-cli/internal/fetcher"
	"github.com/vendocasa/omi-cli/internal/importer"
)

var (
	importSemester string
	importReplace  bool
	importZonesCSV string
	importFetchURL string
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import OMI semester datasets into the database",
}

var importZonesCmd = &cobra.Command{
	Use:   "zones [file]",
	Short: "Import zone perimeters from a KML or shapefile",
	Long: "Loads zone polygons for one semester. Pass a .kml or .shp file, or --fetch with\n" +
		"an http(s):// or ftp:// URL to a dataset archive. The --zones-csv file supplies\n" +
		"LinkZona codes and descriptions for perimeters keyed by municipality and zone.",
	Args: cobra.MaximumNArgs(1),
	RunE: runImportZones,
}

var importQuotationsCmd = &cobra.Command{
	Use:   "quotations <file>",
	Short: "Import price quotations from a VALORI CSV or XLSX export",
	Args:  cobra.ExactArgs(1),
	RunE:  runImportQuotations,
}

func init() {
	importCmd.PersistentFlags().StringVar(&importSemester, "semester", "", "dataset semester, e.g. 2024_S2 (zones: detected from KML when omitted)")
	importCmd.PersistentFlags().BoolVar(&importReplace, "replace", false, "delete existing rows for the semester before loading")
	importZonesCmd.Flags().StringVar(&importZonesCSV, "zones-csv", "", "ZONE CSV with LinkZona codes and zone descriptions")
	importZonesCmd.Flags().StringVar(&importFetchURL, "fetch", "", "download the dataset archive from this URL instead of reading a local file")
	importCmd.AddCommand(importZonesCmd)
	importCmd.AddCommand(importQuotationsCmd)
	rootCmd.AddCommand(importCmd)
}

// resolveDatasetFile returns the local path to import. With --fetch it
// downloads the archive into the configured data dir and extracts it,
// returning the first dataset file inside.
func resolveDatasetFile(cmd *cobra.Command, args []string) (string, error) {
	if importFetchURL == "" {
		if len(args) == 0 {
			return "", eris.New("import: a dataset file or --fetch URL is required")
		}
		return args[0], nil
	}

	dataDir := cfg.Import.DataDir
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return "", eris.Wrap(err, "import: create data dir")
	}

	var f fetcher.Fetcher
	if strings.HasPrefix(importFetchURL, "ftp://") {
		f = fetcher.NewFTPFetcher(60 * time.Second)
	} else {
		f = fetcher.NewHTTPFetcher(fetcher.HTTPOptions{})
	}

	archive := filepath.Join(dataDir, filepath.Base(importFetchURL))
	n, err := f.DownloadToFile(cmd.Context(), importFetchURL, archive)
	if err != nil {
		return "", eris.Wrap(err, "import: download dataset")
	}
	zap.L().Info("dataset downloaded",
		zap.String("component", "importer"),
		zap.String("url", importFetchURL),
		zap.Int64("bytes", n))

	if !strings.HasSuffix(strings.ToLower(archive), ".zip") {
		return archive, nil
	}

	extracted, err := fetcher.ExtractZIP(archive, dataDir)
	if err != nil {
		return "", eris.Wrap(err, "import: extract archive")
	}
	files := fetcher.DatasetFiles(extracted)
	if len(files) == 0 {
		return "", eris.New("import: archive contains no dataset files")
	}
	return files[0], nil
}

func runImportZones(cmd *cobra.Command, args []string) error {
	path, err := resolveDatasetFile(cmd, args)
	if err != nil {
		return err
	}

	lookup := map[importer.ZoneKey]importer.ZoneInfo{}
	if importZonesCSV != "" {
		data, err := os.ReadFile(importZonesCSV)
		if err != nil {
			return eris.Wrap(err, "import: read zones csv")
		}
		lookup, err = importer.ParseZoneDescriptions(data)
		if err != nil {
			return err
		}
	}

	var records []importer.ZoneRecord
	semester := importSemester
	switch strings.ToLower(filepath.Ext(path)) {
	case ".kml":
		data, err := os.ReadFile(path)
		if err != nil {
			return eris.Wrap(err, "import: read kml")
		}
		if semester == "" {
			semester = importer.SemesterFromKML(data)
		}
		if semester == "" {
			return eris.New("import: semester not found in KML, pass --semester")
		}
		records, err = importer.ParseKMLZones(data, semester, lookup)
		if err != nil {
			return err
		}
	case ".shp":
		if semester == "" {
			return eris.New("import: --semester is required for shapefiles")
		}
		records, err = importer.ReadShapefileZones(path, semester, lookup)
		if err != nil {
			return err
		}
	default:
		return eris.Errorf("import: unsupported zone file %q, want .kml or .shp", filepath.Base(path))
	}

	e, err := initEnv(cmd.Context())
	if err != nil {
		return err
	}
	defer e.Close()

	loader := importer.NewLoader(e.Pool,
		importer.WithBatchSize(cfg.Import.BatchSize),
		importer.WithReplace(importReplace))
	n, err := loader.LoadZones(cmd.Context(), semester, records)
	if err != nil {
		return err
	}

	zap.L().Info("zones imported",
		zap.String("component", "importer"),
		zap.String("semester", semester),
		zap.Int64("rows", n))
	return nil
}

func runImportQuotations(cmd *cobra.Command, args []string) error {
	if importSemester == "" {
		return eris.New("import: --semester is required for quotations")
	}
	path := args[0]

	var err error
	var rows int64

	e, initErr := initEnv(cmd.Context())
	if initErr != nil {
		return initErr
	}
	defer e.Close()

	loader := importer.NewLoader(e.Pool,
		importer.WithBatchSize(cfg.Import.BatchSize),
		importer.WithReplace(importReplace))

	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		parsed, perr := importer.ReadQuotationsXLSX(path, importSemester)
		if perr != nil {
			return perr
		}
		rows, err = loader.LoadQuotations(cmd.Context(), importSemester, parsed)
	case ".csv":
		data, rerr := os.ReadFile(path)
		if rerr != nil {
			return eris.Wrap(rerr, "import: read csv")
		}
		parsed, perr := importer.ParseQuotations(data, importSemester)
		if perr != nil {
			return perr
		}
		rows, err = loader.LoadQuotations(cmd.Context(), importSemester, parsed)
	default:
		return eris.Errorf("import: unsupported quotation file %q, want .csv or .xlsx", filepath.Base(path))
	}
	if err != nil {
		return err
	}

	zap.L().Info("quotations imported",
		zap.String("component", "importer"),
		zap.String("semester", importSemester),
		zap.Int64("rows", rows))
	return nil
}
