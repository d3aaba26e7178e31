// Package service implements the competition stage: list every competition,
// drop excluded and repeated ids and write the catalog
package service

import (
	"context"
	"time"

	"kaggleharvest/internal/core/catalog"
	"kaggleharvest/internal/core/exclusion"
	"kaggleharvest/internal/core/report"
	perr "kaggleharvest/internal/platform/errors"
	"kaggleharvest/internal/platform/logger"
	"kaggleharvest/internal/services/competitions/domain"
)

// Stage names this stage in logs and reports
const Stage = "competitions"

// Service implements domain.RunnerPort
type Service struct {
	Remote domain.Lister
}

var _ domain.RunnerPort = (*Service)(nil)

// New constructs the competition stage
func New(remote domain.Lister) *Service {
	if remote == nil {
		panic("competitions.Service requires a non nil Lister")
	}
	return &Service{Remote: remote}
}

// Run lists all competitions and writes those not excluded to outputPath.
// The exclusion set is only read; an empty exclusionPath means no exclusions.
// A listing failure fails the stage and leaves any previous catalog in place
func (s *Service) Run(ctx context.Context, outputPath, exclusionPath string) (*report.Report, error) {
	start := time.Now()
	rep := report.New(Stage)
	defer func() { rep.Elapsed = time.Since(start) }()
	log := logger.C(ctx)

	excl := exclusion.New()
	if exclusionPath != "" {
		var err error
		if excl, err = exclusion.Load(exclusionPath); err != nil {
			return rep, err
		}
	}
	rep.Exclusions = excl

	seen := map[string]struct{}{}
	var out []catalog.Competition
	for comp, err := range s.Remote.ListCompetitions(ctx) {
		if err != nil {
			return rep, perr.WithOp(err, "competitions.list")
		}
		rep.Listed++

		key := catalog.NormalizeID(comp.ID)
		if _, dup := seen[key]; dup {
			rep.Duplicates++
			continue
		}
		seen[key] = struct{}{}

		if excl.Contains(comp.ID) {
			rep.Excluded++
			log.Debug().Str("competition", comp.ID).Msg("competition excluded")
			continue
		}
		out = append(out, comp)
	}

	if err := catalog.WriteCompetitions(outputPath, out); err != nil {
		return rep, perr.WithOp(err, "competitions.write")
	}
	rep.Written = len(out)

	log.Info().
		Int("listed", rep.Listed).
		Int("written", rep.Written).
		Int("excluded", rep.Excluded).
		Int("duplicates", rep.Duplicates).
		Str("out", outputPath).
		Msg("competition catalog written")
	return rep, nil
}
