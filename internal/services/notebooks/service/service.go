// Package service implements the notebook stage: pull every kernel named by
// the kernel catalogs, write its files and then mark it as fetched
package service

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"kaggleharvest/internal/adapters/ingest/kaggle"
	"kaggleharvest/internal/core/catalog"
	"kaggleharvest/internal/core/exclusion"
	"kaggleharvest/internal/core/report"
	perr "kaggleharvest/internal/platform/errors"
	"kaggleharvest/internal/platform/fsutil"
	"kaggleharvest/internal/platform/logger"
	"kaggleharvest/internal/services/notebooks/domain"
)

// Stage names this stage in logs and reports
const Stage = "notebooks"

// Config holds the stage options
type Config struct {
	// Language keeps only kernels in this language; empty keeps all
	Language string
}

// Service implements domain.RunnerPort
type Service struct {
	Remote domain.Fetcher
	Cfg    Config

	// afterWrite runs between writing a kernel's files and marking it
	afterWrite func(kernelID string) error
}

var _ domain.RunnerPort = (*Service)(nil)

// New constructs the notebook stage
func New(remote domain.Fetcher, cfg Config) *Service {
	if remote == nil {
		panic("notebooks.Service requires a non nil Fetcher")
	}
	cfg.Language = strings.ToLower(strings.TrimSpace(cfg.Language))
	return &Service{Remote: remote, Cfg: cfg}
}

// Run pulls pending kernels. Forbidden, missing and filtered kernels are
// recorded with their reason; retryable failures are logged and left
// unmarked. Auth, malformed input and local IO failures abort the run
func (s *Service) Run(ctx context.Context, kernelsDir, outputDir, exclusionPath string) (*report.Report, error) {
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

	idx, err := scanArtifacts(outputDir)
	if err != nil {
		return rep, err
	}
	if repaired := reconcile(excl, idx); len(repaired) > 0 {
		rep.Repaired = len(repaired)
		log.Warn().Strs("kernels", repaired).Msg("fetched kernels without artifacts will be pulled again")
		if err := save(excl, exclusionPath); err != nil {
			return rep, err
		}
	}

	kernels, err := s.readCatalogs(ctx, kernelsDir)
	if err != nil {
		return rep, err
	}
	pending := pendingKernels(kernels, excl, rep)
	log.Info().
		Int("kernels", len(kernels)).
		Int("pending", len(pending)).
		Str("language", s.Cfg.Language).
		Msg("notebook harvest starting")

	for i, k := range pending {
		if err := ctx.Err(); err != nil {
			return rep, perr.Wrap(err, perr.ErrorCodeCanceled, "notebook harvest interrupted")
		}
		log.Info().Str("title", k.Title()).Msgf("working on kernel %s (%d/%d)", k.ID, i+1, len(pending))
		if err := s.harvest(ctx, k, outputDir, exclusionPath, excl, rep); err != nil {
			return rep, err
		}
	}

	log.Info().
		Int("written", rep.Written).
		Int("recorded", rep.Recorded).
		Int("failed", rep.Failed()).
		Msg("notebook harvest finished")
	return rep, nil
}

// readCatalogs loads every *.json kernel catalog in dir, in name order.
// Files that cannot be read or parsed are logged and skipped; catalogs that
// parse but hold invalid records fail the run
func (s *Service) readCatalogs(ctx context.Context, dir string) ([]catalog.Kernel, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, perr.IOf(err, "read kernel catalog dir %s", dir)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.EqualFold(filepath.Ext(e.Name()), ".json") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var out []catalog.Kernel
	for _, name := range names {
		path := filepath.Join(dir, name)
		ks, err := catalog.ReadKernels(path)
		switch {
		case err == nil:
			out = append(out, ks...)
		case perr.IsCode(err, perr.ErrorCodeValidation):
			return nil, err
		default:
			logger.C(ctx).Warn().Err(err).Str("file", path).Msg("kernel catalog skipped")
		}
	}
	return out, nil
}

// pendingKernels drops repeated and excluded kernels, keeping catalog order
func pendingKernels(kernels []catalog.Kernel, excl *exclusion.Set, rep *report.Report) []catalog.Kernel {
	seen := make(map[string]struct{}, len(kernels))
	out := make([]catalog.Kernel, 0, len(kernels))
	for _, k := range kernels {
		rep.Listed++
		key := catalog.NormalizeID(k.ID)
		if _, dup := seen[key]; dup {
			rep.Duplicates++
			continue
		}
		seen[key] = struct{}{}
		if excl.Contains(k.ID) {
			rep.Excluded++
			continue
		}
		out = append(out, k)
	}
	return out
}

// harvest pulls one kernel. Only fatal errors are returned
func (s *Service) harvest(ctx context.Context, k catalog.Kernel, outputDir, exclusionPath string, excl *exclusion.Set, rep *report.Report) error {
	log := logger.C(ctx).With().Str("kernel", k.ID).Logger()

	// catalogs usually carry language and kernelType; filter before spending a request
	if why := s.filter(k.Language(), k.Str("kernelType")); why != "" {
		log.Info().Msgf("skipping (%s)", why)
		return s.record(excl, exclusionPath, k.ID, exclusion.ReasonSkipped, rep)
	}

	nb, err := s.Remote.FetchNotebookFiles(ctx, k.ID)
	if err != nil {
		if perr.Fatal(err) {
			return err
		}
		if reason, ok := exclusion.ReasonFor(err); ok {
			log.Info().Err(err).Msgf("skipping (%s)", reason)
			return s.record(excl, exclusionPath, k.ID, reason, rep)
		}
		log.Warn().Err(err).Stringer("kind", perr.CodeOf(err)).Bool("retryable", perr.Retryable(err)).
			Msg("kernel failed; left for the next run")
		rep.Fail(k.ID, err)
		return nil
	}

	if why := s.filter(nb.Language, nb.KernelType); why != "" {
		log.Info().Msgf("skipping (%s)", why)
		return s.record(excl, exclusionPath, k.ID, exclusion.ReasonSkipped, rep)
	}
	if len(nb.Files) == 0 {
		log.Info().Msgf("skipping (kernel type %s, language %s has no file form)", nb.KernelType, nb.Language)
		return s.record(excl, exclusionPath, k.ID, exclusion.ReasonSkipped, rep)
	}

	for _, f := range nb.Files {
		if err := fsutil.WriteFileAtomic(filepath.Join(outputDir, f.Name), f.Data, 0o644); err != nil {
			return perr.WithField(err, k.ID)
		}
	}
	if s.afterWrite != nil {
		if err := s.afterWrite(k.ID); err != nil {
			return err
		}
	}
	excl.Add(k.ID, exclusion.ReasonFetched)
	if err := save(excl, exclusionPath); err != nil {
		return err
	}
	rep.Written++
	log.Debug().Int("files", len(nb.Files)).Msg("kernel written")
	return nil
}

// filter returns why a kernel is out of scope, or "" when it is wanted.
// Unknown values pass; the pulled metadata is checked again
func (s *Service) filter(language, kernelType string) string {
	language = strings.ToLower(strings.TrimSpace(language))
	kernelType = strings.ToLower(strings.TrimSpace(kernelType))
	if s.Cfg.Language != "" && language != "" && language != s.Cfg.Language {
		return "kernel language " + language
	}
	if kernelType != "" && kernelType != kaggle.KernelTypeNotebook && kernelType != kaggle.KernelTypeScript {
		return "kernel type " + kernelType
	}
	return ""
}

func (s *Service) record(excl *exclusion.Set, path, id string, reason exclusion.Reason, rep *report.Report) error {
	excl.Add(id, reason)
	if err := save(excl, path); err != nil {
		return err
	}
	rep.Recorded++
	return nil
}

// save persists the set; without a path it stays in memory
func save(excl *exclusion.Set, path string) error {
	if path == "" {
		return nil
	}
	return excl.Save(path)
}
