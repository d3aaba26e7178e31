package cli

import (
	competitions "kaggleharvest/internal/services/competitions/service"
	kernels "kaggleharvest/internal/services/kernels/service"
	notebooks "kaggleharvest/internal/services/notebooks/service"

	"github.com/spf13/cobra"
)

func (a *app) competitionsCmd() *cobra.Command {
	var out, exclude string
	cmd := &cobra.Command{
		Use:   "competitions",
		Short: "Fetch the competition catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			return a.finish(competitions.New(c).Run(cmd.Context(), out, exclude))
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file")
	cmd.Flags().StringVarP(&exclude, "exclude", "e", "", "JSON file of competitions to leave out (read only)")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}

func (a *app) kernelsCmd() *cobra.Command {
	var comps, exclude, out string
	var workers int
	cmd := &cobra.Command{
		Use:   "kernels",
		Short: "Fetch kernels for a list of competitions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			svc := kernels.New(c, kernels.Config{Workers: workers})
			return a.finish(svc.Run(cmd.Context(), comps, out, exclude))
		},
	}
	hc := a.cfg.Prefix("HARVEST_")
	cmd.Flags().StringVarP(&comps, "competitions", "c", "", "JSON file with the competition catalog")
	cmd.Flags().StringVarP(&exclude, "exclude", "e", "", "JSON file of competitions to exclude; updated as competitions are processed")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output directory")
	cmd.Flags().IntVar(&workers, "workers", hc.MayInt("WORKERS", 1), "competitions listed in parallel")
	for _, f := range []string{"competitions", "exclude", "out"} {
		_ = cmd.MarkFlagRequired(f)
	}
	return cmd
}

func (a *app) notebooksCmd() *cobra.Command {
	var kernelsDir, exclude, out, language string
	cmd := &cobra.Command{
		Use:   "notebooks",
		Short: "Fetch notebooks for a directory of kernel catalogs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			svc := notebooks.New(c, notebooks.Config{Language: language})
			return a.finish(svc.Run(cmd.Context(), kernelsDir, out, exclude))
		},
	}
	hc := a.cfg.Prefix("HARVEST_")
	cmd.Flags().StringVarP(&kernelsDir, "kernels", "k", "", "directory with kernel catalog JSON files")
	cmd.Flags().StringVarP(&exclude, "exclude", "e", "", "JSON file of kernels to exclude; updated as kernels are processed")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output directory")
	cmd.Flags().StringVar(&language, "language", hc.MayString("LANGUAGE", "python"), `keep kernels in this language; "" keeps all`)
	for _, f := range []string{"kernels", "exclude", "out"} {
		_ = cmd.MarkFlagRequired(f)
	}
	return cmd
}
