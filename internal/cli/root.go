// Package cli provides the kaggleharvest command tree: one subcommand per
// harvest stage, each a fresh run with its own run id
package cli

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"kaggleharvest/internal/adapters/ingest/kaggle"
	"kaggleharvest/internal/core/report"
	"kaggleharvest/internal/core/version"
	"kaggleharvest/internal/platform/config"
	perr "kaggleharvest/internal/platform/errors"
	"kaggleharvest/internal/platform/logger"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// app carries what every subcommand shares
type app struct {
	cfg     config.Conf
	out     io.Writer // summary tables
	verbose bool
	runID   string
}

// NewRootCmd builds the command tree. Summaries are written to out
func NewRootCmd(out io.Writer) *cobra.Command {
	a := &app{cfg: config.New(), out: out}

	root := &cobra.Command{
		Use:   "kaggleharvest",
		Short: "Harvest competitions, kernels and notebooks from Kaggle",
		Long: `kaggleharvest crawls Kaggle in three stages, each reading the previous
stage's output:

  kaggleharvest competitions -o competitions.json
  kaggleharvest kernels -c competitions.json -e excluded_competitions.json -o kernels/
  kaggleharvest notebooks -k kernels/ -e excluded_kernels.json -o notebooks/

Every stage can be interrupted and re-run; exclusion files record what is done.
Credentials come from KAGGLE_USERNAME/KAGGLE_KEY or ~/.kaggle/kaggle.json.`,
		Version:       version.Info().String(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			if a.verbose {
				logger.SetLevel("debug")
			}
			a.runID = uuid.NewString()
			cmd.SetContext(logger.WithRun(cmd.Context(), a.runID, cmd.Name()))
		},
	}
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(
		a.competitionsCmd(),
		a.kernelsCmd(),
		a.notebooksCmd(),
	)
	return root
}

// Execute runs the CLI until done or interrupted and returns the exit code
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return run(ctx, NewRootCmd(os.Stderr), os.Args[1:])
}

func run(ctx context.Context, root *cobra.Command, args []string) int {
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		logFailure(logger.Get(), err)
		return 1
	}
	return 0
}

// client builds the API client from KAGGLE_* settings and credentials
func (a *app) client() (*kaggle.Client, error) {
	creds, err := kaggle.LoadCredentials(a.cfg)
	if err != nil {
		return nil, err
	}
	o := kaggle.FromConfig(a.cfg)
	o.Credentials = creds
	if a.cfg.Prefix("KAGGLE_").MayString("USER_AGENT", "") == "" {
		o.UserAgent = version.Info().UserAgent()
	}
	return kaggle.NewClient(o)
}

// finish prints the run summary, even for a failed run, and passes err through
func (a *app) finish(rep *report.Report, err error) error {
	if rep != nil {
		renderSummary(a.out, a.runID, rep)
	}
	return err
}

// logFailure reports the error that ended the run
func logFailure(log *logger.Logger, err error) {
	ev := log.Error().Err(err).Stringer("kind", perr.CodeOf(err))
	if root := perr.Root(err); root != err {
		ev = ev.AnErr("cause", root)
	}
	if perr.IsMalformed(err) {
		ev = ev.Str("hint", "fix or remove the offending input file and rerun")
	}
	ev.Msg("kaggleharvest failed")
}
