package main

import (
	"fmt"

	"github.com/rodrigo-romano/gmt-ns-im/diagnostics"
	"github.com/rodrigo-romano/gmt-ns-im/merge"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newSpectrumCmd(a *app) *cobra.Command {
	var (
		out    string
		single bool
	)
	cmd := &cobra.Command{
		Use:   "spectrum",
		Short: "Plot the singular values of the merged reconstructor",
		Long: `Plots, per segment, the singular values of the normalized joint M2 rigid body
motion and M1 bending mode interaction matrix. With --single, only the M2 rigid
body motions are used.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := syntheticSource(a.sys, a.seed)
			if err != nil {
				return err
			}
			nameB, title := m1Bending, "M2 RBM + M1 bending modes"
			if single {
				nameB, title = "", "M2 RBM"
			}
			mrg, err := merge.Load(cmd.Context(), src, m2RBM, nameB, a.sys.MergeOptions(a.logger)...)
			if err != nil {
				return err
			}
			if err := diagnostics.PlotSpectrum(mrg.Reconstructor(), title, out); err != nil {
				return err
			}
			a.logger.Info("spectrum saved", zap.String("path", out))
			fmt.Fprint(cmd.OutOrStdout(), mrg)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "spectrum.png", "Output image (png, svg, pdf)")
	cmd.Flags().BoolVar(&single, "single", false, "Plot the M2 rigid body motion reconstructor alone")
	return cmd
}
