package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/radar-merge-service/internal/domain"
	"github.com/couchcryptid/radar-merge-service/internal/pipeline"
)

func newSingleCommand(a *app) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "single <file>",
		Short: "Decode one RB5 raw file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m := a.merger()
			obj, err := m.Single(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return saveAndReport(cmd, m, obj, out)
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", "ODIM_H5 output file")
	return cmd
}

func newCombineCommand(a *app) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "combine <file>...",
		Short: "Merge single-quantity RB5 raw files into one product",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m := a.merger()
			obj, err := m.CombineFiles(cmd.Context(), args)
			if err != nil {
				return err
			}
			return saveAndReport(cmd, m, obj, out)
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", "ODIM_H5 output file")
	return cmd
}

func newTarballCommand(a *app) *cobra.Command {
	var out, outDir string
	cmd := &cobra.Command{
		Use:   "tarball <archive.tar.gz>",
		Short: "Merge the raw members of one RB5 archive into one product",
		Long: "Merge the raw members of one RB5 archive. Without --output the product is written to\n" +
			"{out-dir}/{site}/{date}/{sdf}/{site}.{date}_{HHMM}Z.{sdf}.h5.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m := a.merger()
			obj, err := m.CombineArchive(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			base := outDir
			if base == "" {
				base = a.cfg.OutputBaseDir
			}
			target, err := pipeline.ResolveOutput(args[0], out, base, false)
			if err != nil {
				return err
			}
			return saveAndReport(cmd, m, obj, target)
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", "ODIM_H5 output file (derived from the archive name when empty)")
	cmd.Flags().StringVar(&outDir, "out-dir", "", "Base directory for derived output paths (overrides OUTPUT_BASE_DIR)")
	return cmd
}

func newCycleCommand(a *app) *cobra.Command {
	var (
		out      string
		interval float64
		task     string
	)
	cmd := &cobra.Command{
		Use:   "cycle <archive.tar.gz>...",
		Short: "Merge single-sweep archives into one volume for their scan cycle",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(out) == "" {
				return errors.New("--output is required")
			}
			d := a.cfg.CycleInterval
			if cmd.Flags().Changed("interval") {
				d = domain.MinutesToInterval(interval)
				if d <= 0 {
					return fmt.Errorf("--interval must be positive, got %g", interval)
				}
			}
			if task == "" {
				task = a.cfg.TaskName
			}

			m := a.merger()
			obj, err := m.CombineArchivesToVolume(cmd.Context(), args, d, task)
			if err != nil {
				return err
			}
			return saveAndReport(cmd, m, obj, out)
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", "ODIM_H5 output file")
	cmd.Flags().Float64Var(&interval, "interval", 0, "Scan cycle length in minutes, fractions allowed (overrides CYCLE_INTERVAL_MINUTES)")
	cmd.Flags().StringVar(&task, "task", "", "Volume task name (overrides VOLUME_TASK_NAME)")
	return cmd
}

func saveAndReport(cmd *cobra.Command, m *pipeline.Merger, obj domain.Object, out string) error {
	if out != "" {
		if err := m.Save(cmd.Context(), obj, out); err != nil {
			return err
		}
	}
	writeSummary(cmd.OutOrStdout(), obj, out)
	return nil
}

// writeSummary prints one line per sweep after a header describing obj.
func writeSummary(w io.Writer, obj domain.Object, out string) {
	var scans []*domain.Scan
	switch obj.Kind {
	case domain.KindScan:
		fmt.Fprintf(w, "%s %s %s %s\n", obj.Kind, obj.Scan.Source, obj.Scan.Date, obj.Scan.Time)
		scans = []*domain.Scan{obj.Scan}
	case domain.KindVolume:
		fmt.Fprintf(w, "%s %s %s %s (%d sweeps)\n",
			obj.Kind, obj.Volume.Source, obj.Volume.Date, obj.Volume.Time, obj.Volume.ScanCount())
		scans = obj.Volume.Scans
	}
	for _, s := range scans {
		fmt.Fprintf(w, "  %6.2f  %s\n", s.Elevation, strings.Join(s.QuantityNames(), " "))
	}
	if out != "" {
		fmt.Fprintf(w, "saved %s\n", out)
	}
}
