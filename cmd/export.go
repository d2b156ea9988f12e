package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ipowatch/internal/clock/system"
	"ipowatch/internal/export"
)

func newExportCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Writes the collected schedules to an Excel workbook",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := newRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			exporter := export.New(rt.store, system.Clock{}, rt.cfg.Export.Dir)

			var (
				path string
				rows int
			)
			if output != "" {
				path = output
				rows, err = exporter.WriteFile(cmd.Context(), output)
			} else {
				path, rows, err = exporter.Write(cmd.Context())
			}
			if err != nil {
				return err
			}
			rt.logger.Info("export written",
				zap.String("path", path),
				zap.Int("rows", rows),
			)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "workbook path (default: timestamped file in export.dir)")
	return cmd
}
