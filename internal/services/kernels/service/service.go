// Package service implements the kernel stage: for every competition in the
// catalog that is not yet excluded, list its kernels, write them to
// <dir>/<competition>.json and mark the competition as fetched
package service

import (
	"context"
	"time"

	"kaggleharvest/internal/core/catalog"
	"kaggleharvest/internal/core/exclusion"
	"kaggleharvest/internal/core/report"
	perr "kaggleharvest/internal/platform/errors"
	"kaggleharvest/internal/platform/logger"
	"kaggleharvest/internal/services/kernels/domain"

	"golang.org/x/sync/errgroup"
)

// Stage names this stage in logs and reports
const Stage = "kernels"

// Config holds the stage options
type Config struct {
	Workers int // competitions listed in parallel; <=0 -> 1
}

// Service implements domain.RunnerPort
type Service struct {
	Remote domain.Lister
	Cfg    Config

	// afterWrite runs between writing a catalog and marking its competition
	afterWrite func(competitionID string) error
}

var _ domain.RunnerPort = (*Service)(nil)

// New constructs the kernel stage
func New(remote domain.Lister, cfg Config) *Service {
	if remote == nil {
		panic("kernels.Service requires a non nil Lister")
	}
	return &Service{Remote: remote, Cfg: cfg}
}

// Run harvests kernel catalogs. Competitions that fail with a retryable error
// are logged and left unmarked for the next run; auth, malformed input and
// local IO failures abort the run
func (s *Service) Run(ctx context.Context, competitionsPath, outputDir, exclusionPath string) (*report.Report, error) {
	start := time.Now()
	rep := report.New(Stage)
	defer func() { rep.Elapsed = time.Since(start) }()
	log := logger.C(ctx)

	comps, err := catalog.ReadCompetitions(competitionsPath)
	if err != nil {
		return rep, err
	}

	excl := exclusion.New()
	if exclusionPath != "" {
		if excl, err = exclusion.Load(exclusionPath); err != nil {
			return rep, err
		}
	}
	rep.Exclusions = excl

	pending := s.pending(ctx, comps, excl, rep)
	log.Info().
		Int("competitions", len(comps)).
		Int("pending", len(pending)).
		Int("workers", max(s.Cfg.Workers, 1)).
		Msg("kernel harvest starting")

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(s.Cfg.Workers, 1))
	for i, comp := range pending {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			log.Info().Str("title", comp.Str("title")).Msgf("working on competition %s (%d/%d)", comp.ID, i+1, len(pending))
			err := s.harvest(gctx, comp.ID, outputDir, exclusionPath, excl, rep)
			if err == nil {
				return nil
			}
			if perr.Fatal(err) {
				return err
			}
			return s.itemFailed(gctx, comp.ID, exclusionPath, excl, rep, err)
		})
	}
	if err := g.Wait(); err != nil {
		return rep, err
	}
	if err := ctx.Err(); err != nil {
		return rep, perr.Wrap(err, perr.ErrorCodeCanceled, "kernel harvest interrupted")
	}

	log.Info().
		Int("written", rep.Written).
		Int("excluded", rep.Excluded).
		Int("failed", rep.Failed()).
		Msg("kernel harvest finished")
	return rep, nil
}

// pending drops repeated and excluded competitions, keeping catalog order
func (s *Service) pending(ctx context.Context, comps []catalog.Competition, excl *exclusion.Set, rep *report.Report) []catalog.Competition {
	seen := make(map[string]struct{}, len(comps))
	out := make([]catalog.Competition, 0, len(comps))
	for _, c := range comps {
		rep.Listed++
		key := catalog.NormalizeID(c.ID)
		if _, dup := seen[key]; dup {
			rep.Duplicates++
			continue
		}
		seen[key] = struct{}{}
		if reason, ok := excl.Reason(c.ID); ok {
			rep.Excluded++
			logger.C(ctx).Debug().Str("competition", c.ID).Str("reason", string(reason)).Msg("competition excluded")
			continue
		}
		out = append(out, c)
	}
	return out
}

// harvest lists one competition, writes its catalog, then marks it
func (s *Service) harvest(ctx context.Context, competitionID, outputDir, exclusionPath string, excl *exclusion.Set, rep *report.Report) error {
	seen := map[string]struct{}{}
	var kernels []catalog.Kernel
	dups, excluded := 0, 0
	for k, err := range s.Remote.ListKernels(ctx, competitionID) {
		if err != nil {
			return err
		}
		key := catalog.NormalizeID(k.ID)
		if _, dup := seen[key]; dup {
			dups++
			continue
		}
		seen[key] = struct{}{}
		if excl.Contains(k.ID) {
			excluded++
			continue
		}
		kernels = append(kernels, k)
	}

	// empty catalogs are not written; the competition is still marked
	if len(kernels) > 0 {
		if err := catalog.WriteKernels(catalog.KernelCatalogPath(outputDir, competitionID), kernels); err != nil {
			return perr.WithField(err, competitionID)
		}
	}
	if s.afterWrite != nil {
		if err := s.afterWrite(competitionID); err != nil {
			return err
		}
	}
	if err := mark(excl, exclusionPath, competitionID, exclusion.ReasonFetched); err != nil {
		return err
	}

	rep.Count(func(r *report.Report) {
		r.Written++
		r.Duplicates += dups
		r.Excluded += excluded
	})
	logger.C(ctx).Debug().
		Str("competition", competitionID).
		Int("kernels", len(kernels)).
		Int("excluded_kernels", excluded).
		Msg("competition harvested")
	return nil
}

// itemFailed downgrades a per-competition failure. Permanent ones are recorded
// so later runs skip them; the rest stay unmarked
func (s *Service) itemFailed(ctx context.Context, competitionID, exclusionPath string, excl *exclusion.Set, rep *report.Report, err error) error {
	ev := logger.C(ctx).Warn().Err(err).Str("competition", competitionID).Stringer("kind", perr.CodeOf(err)).
		Bool("retryable", perr.Retryable(err))
	if reason, ok := exclusion.ReasonFor(err); ok {
		if merr := mark(excl, exclusionPath, competitionID, reason); merr != nil {
			return merr
		}
		rep.Count(func(r *report.Report) { r.Recorded++ })
		ev.Str("recorded", string(reason)).Msg("competition skipped")
		return nil
	}
	rep.Fail(competitionID, err)
	ev.Msg("competition failed; left for the next run")
	return nil
}

// mark adds id and persists the set; without a path the set stays in memory
func mark(excl *exclusion.Set, path, id string, reason exclusion.Reason) error {
	excl.Add(id, reason)
	if path == "" {
		return nil
	}
	return excl.Save(path)
}
