package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/IdrisKulubi/HIH-sub002/internal/container"
	"github.com/IdrisKulubi/HIH-sub002/internal/export"
	"github.com/IdrisKulubi/HIH-sub002/internal/repository"
	"github.com/IdrisKulubi/HIH-sub002/internal/service"
	"github.com/spf13/cobra"
)

// exportCmd 导出通过尽调的申请
var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export applications that passed due diligence",
	Long: `Write the qualified applications (due diligence approved with a pass verdict)
to an XLSX or CSV file. The format follows the output file extension unless
--format is given.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")
		format, _ := cmd.Flags().GetString("format")
		if format == "" {
			format = formatFromPath(output)
		}
		if format != "xlsx" && format != "csv" {
			return fmt.Errorf("unsupported export format %q", format)
		}

		cfg, _, log, err := bootstrap(cmd)
		if err != nil {
			return err
		}

		ctr, err := container.NewContainer(cfg, log)
		if err != nil {
			return fmt.Errorf("failed to initialize container: %w", err)
		}
		defer ctr.Close()

		filter := repository.DDFilter{}
		filter.Track, _ = cmd.Flags().GetString("track")
		filter.County, _ = cmd.Flags().GetString("county")
		filter.Sector, _ = cmd.Flags().GetString("sector")

		rows, err := ctr.Services().DueDiligence.Qualified(service.SystemContext(cmd.Context()), filter)
		if err != nil {
			return fmt.Errorf("failed to load qualified applications: %w", err)
		}

		f, err := os.Create(output)
		if err != nil {
			return err
		}
		defer f.Close()

		if format == "csv" {
			err = export.WriteQualifiedCSV(f, rows)
		} else {
			err = export.WriteQualifiedXLSX(f, rows)
		}
		if err != nil {
			return fmt.Errorf("failed to write export: %w", err)
		}

		log.WithField("rows", len(rows)).WithField("file", output).Info("export written")
		return nil
	},
}

func formatFromPath(path string) string {
	switch filepath.Ext(path) {
	case ".csv":
		return "csv"
	default:
		return "xlsx"
	}
}

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().StringP("output", "o", "qualified-applications.xlsx", "Output file")
	exportCmd.Flags().String("format", "", "xlsx or csv (default: from the output extension)")
	exportCmd.Flags().String("track", "", "Only export this track")
	exportCmd.Flags().String("county", "", "Only export this county")
	exportCmd.Flags().String("sector", "", "Only export this sector")
}
