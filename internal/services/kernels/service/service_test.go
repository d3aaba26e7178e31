package service

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"kaggleharvest/internal/adapters/ingest/kaggle"
	"kaggleharvest/internal/adapters/ingest/kaggle/kaggletest"
	"kaggleharvest/internal/core/catalog"
	"kaggleharvest/internal/core/exclusion"
	perr "kaggleharvest/internal/platform/errors"
	kit "kaggleharvest/internal/platform/testkit"

	"github.com/google/go-cmp/cmp"
)

type fixture struct {
	srv       *kaggletest.Server
	svc       *Service
	compsPath string
	outDir    string
	exclPath  string
}

func newFixture(t *testing.T, comps ...string) *fixture {
	t.Helper()
	srv := kaggletest.New(t)
	c, err := kaggle.NewClient(kaggle.Options{
		BaseURL:     srv.URL,
		MaxRetries:  1,
		RetryBase:   time.Millisecond,
		RetryCap:    time.Millisecond,
		RatePerSec:  1000,
		Burst:       100,
		PageSize:    2,
		Credentials: kaggle.Credentials{Username: kaggletest.Username, Key: kaggletest.Key},
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	dir := t.TempDir()
	f := &fixture{
		srv:       srv,
		svc:       New(c, Config{}),
		compsPath: filepath.Join(dir, "competitions.json"),
		outDir:    filepath.Join(dir, "kernels"),
		exclPath:  filepath.Join(dir, "excluded_competitions.json"),
	}
	cs := make([]catalog.Competition, 0, len(comps))
	for _, id := range comps {
		cs = append(cs, catalog.Competition{ID: id})
	}
	if err := catalog.WriteCompetitions(f.compsPath, cs); err != nil {
		t.Fatalf("write competitions: %v", err)
	}
	return f
}

func (f *fixture) run(t *testing.T) (*Service, error) {
	t.Helper()
	_, err := f.svc.Run(context.Background(), f.compsPath, f.outDir, f.exclPath)
	return f.svc, err
}

func (f *fixture) kernelIDs(t *testing.T, comp string) []string {
	t.Helper()
	ks, err := catalog.ReadKernels(catalog.KernelCatalogPath(f.outDir, comp))
	if err != nil {
		t.Fatalf("read kernels of %s: %v", comp, err)
	}
	out := make([]string, 0, len(ks))
	for _, k := range ks {
		if k.CompetitionID != comp {
			t.Fatalf("kernel %s belongs to %q, want %q", k.ID, k.CompetitionID, comp)
		}
		out = append(out, k.ID)
	}
	return out
}

func (f *fixture) snapshot(t *testing.T) map[string]exclusion.Reason {
	t.Helper()
	s, err := exclusion.Load(f.exclPath)
	if err != nil {
		t.Fatalf("load exclusions: %v", err)
	}
	return s.Snapshot()
}

func TestNew_NilListerPanics(t *testing.T) {
	kit.MustPanic(t, func() { New(nil, Config{}) })
}

func TestRun_ListsEveryPageAndMarksCompetitions(t *testing.T) {
	f := newFixture(t, "titanic", "empty-comp")
	f.srv.SetKernels("titanic", []string{"a/one", "b/two"}, []string{"c/three"})

	rep, err := f.svc.Run(context.Background(), f.compsPath, f.outDir, f.exclPath)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if diff := cmp.Diff([]string{"a/one", "b/two", "c/three"}, f.kernelIDs(t, "titanic")); diff != "" {
		t.Fatalf("kernels (-want +got):\n%s", diff)
	}
	// pages 1, 2 and the terminating empty page 3
	if h := f.srv.Hits(kaggletest.KernelsKey("titanic")); h != 3 {
		t.Fatalf("kernel listing hits = %d, want 3", h)
	}
	kit.MustNotExist(t, catalog.KernelCatalogPath(f.outDir, "empty-comp"))

	want := map[string]exclusion.Reason{"titanic": exclusion.ReasonFetched, "empty-comp": exclusion.ReasonFetched}
	if diff := cmp.Diff(want, f.snapshot(t)); diff != "" {
		t.Fatalf("exclusions (-want +got):\n%s", diff)
	}
	if rep.Written != 2 || rep.Failed() != 0 || rep.Exclusions.Len() != 2 {
		t.Fatalf("report = %+v", rep.Rows())
	}
}

func TestRun_SecondRunIsIncremental(t *testing.T) {
	f := newFixture(t, "titanic", "house-prices")
	f.srv.SetKernels("titanic", []string{"a/one"})
	f.srv.SetKernels("house-prices", []string{"b/two"})

	if _, err := f.run(t); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	before := kit.ReadFile(t, catalog.KernelCatalogPath(f.outDir, "titanic"))
	hits := f.srv.Hits(kaggletest.KernelsKey("titanic")) + f.srv.Hits(kaggletest.KernelsKey("house-prices"))

	rep, err := f.svc.Run(context.Background(), f.compsPath, f.outDir, f.exclPath)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	after := f.srv.Hits(kaggletest.KernelsKey("titanic")) + f.srv.Hits(kaggletest.KernelsKey("house-prices"))
	if after != hits {
		t.Fatalf("second run issued %d listing requests", after-hits)
	}
	if rep.Written != 0 || rep.Excluded != 2 {
		t.Fatalf("report = %+v", rep.Rows())
	}
	if kit.ReadFile(t, catalog.KernelCatalogPath(f.outDir, "titanic")) != before {
		t.Fatalf("catalog rewritten on an idle run")
	}
}

func TestRun_ExclusionsFilterCompetitionsAndKernels(t *testing.T) {
	f := newFixture(t, "titanic", "house-prices", "Titanic")
	f.srv.SetKernels("titanic", []string{"a/one", "b/two", "A/One"})
	f.srv.SetKernels("house-prices", []string{"c/three"})
	kit.WriteFile(t, f.exclPath, `{"house-prices": "excluded", "B/Two": "excluded"}`)

	rep, err := f.svc.Run(context.Background(), f.compsPath, f.outDir, f.exclPath)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if diff := cmp.Diff([]string{"a/one"}, f.kernelIDs(t, "titanic")); diff != "" {
		t.Fatalf("kernels (-want +got):\n%s", diff)
	}
	if f.srv.Hits(kaggletest.KernelsKey("house-prices")) != 0 {
		t.Fatalf("excluded competition was listed")
	}
	kit.MustNotExist(t, catalog.KernelCatalogPath(f.outDir, "house-prices"))
	if rep.Duplicates != 2 {
		t.Fatalf("duplicates = %d, want 2 (competition and kernel)", rep.Duplicates)
	}
	if r := f.snapshot(t)["house-prices"]; r != exclusion.ReasonExcluded {
		t.Fatalf("curated reason overwritten: %q", r)
	}
}

func TestRun_PartialFailureIsIsolated(t *testing.T) {
	f := newFixture(t, "titanic", "house-prices", "digit-recognizer")
	f.srv.SetKernels("titanic", []string{"a/one"})
	f.srv.SetKernels("house-prices", []string{"b/two"})
	f.srv.SetKernels("digit-recognizer", []string{"c/three"})
	f.srv.FailAlways(kaggletest.KernelsKey("house-prices"), 503)

	rep, err := f.svc.Run(context.Background(), f.compsPath, f.outDir, f.exclPath)
	if err != nil {
		t.Fatalf("a transient failure must not fail the run: %v", err)
	}
	if diff := cmp.Diff([]string{"house-prices"}, rep.FailedIDs()); diff != "" {
		t.Fatalf("failed (-want +got):\n%s", diff)
	}
	kit.MustExist(t, catalog.KernelCatalogPath(f.outDir, "titanic"))
	kit.MustExist(t, catalog.KernelCatalogPath(f.outDir, "digit-recognizer"))
	if _, ok := f.snapshot(t)["house-prices"]; ok {
		t.Fatalf("failed competition was marked")
	}

	f.srv.FailAlways(kaggletest.KernelsKey("house-prices"), 0)
	titanicHits := f.srv.Hits(kaggletest.KernelsKey("titanic"))
	if _, err := f.run(t); err != nil {
		t.Fatalf("retry Run: %v", err)
	}
	if diff := cmp.Diff([]string{"b/two"}, f.kernelIDs(t, "house-prices")); diff != "" {
		t.Fatalf("kernels (-want +got):\n%s", diff)
	}
	if f.srv.Hits(kaggletest.KernelsKey("titanic")) != titanicHits {
		t.Fatalf("finished competition listed again")
	}
}

func TestRun_PermanentFailureIsRecorded(t *testing.T) {
	f := newFixture(t, "private-comp", "titanic")
	f.srv.SetKernels("titanic", []string{"a/one"})
	f.srv.FailAlways(kaggletest.KernelsKey("private-comp"), 403)

	rep, err := f.svc.Run(context.Background(), f.compsPath, f.outDir, f.exclPath)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Recorded != 1 || rep.Failed() != 0 {
		t.Fatalf("report = %+v", rep.Rows())
	}
	if r := f.snapshot(t)["private-comp"]; r != exclusion.ReasonForbidden {
		t.Fatalf("reason = %q, want forbidden", r)
	}
}

func TestRun_FatalErrorsAbort(t *testing.T) {
	f := newFixture(t, "titanic", "house-prices")
	f.srv.SetKernels("titanic", []string{"a/one"})
	f.srv.FailAlways(kaggletest.KernelsKey("titanic"), 401)

	_, err := f.run(t)
	if !perr.IsCode(err, perr.ErrorCodeUnauthorized) {
		t.Fatalf("expected Unauthorized, got %v", err)
	}
	if f.srv.Hits(kaggletest.KernelsKey("house-prices")) != 0 {
		t.Fatalf("run continued after an auth failure")
	}
	if len(f.snapshot(t)) != 0 {
		t.Fatalf("nothing should be marked: %v", f.snapshot(t))
	}
}

func TestRun_MalformedCatalogIsFatal(t *testing.T) {
	f := newFixture(t)
	kit.WriteFile(t, f.compsPath, `[{"title": "no id"}]`)
	_, err := f.run(t)
	if !perr.Fatal(err) || !perr.IsMalformed(err) {
		t.Fatalf("expected malformed input, got %v", err)
	}

	kit.WriteFile(t, f.compsPath, `[`)
	if _, err := f.run(t); !perr.IsCode(err, perr.ErrorCodeJSON) {
		t.Fatalf("expected JSON error, got %v", err)
	}

	_, err = f.svc.Run(context.Background(), filepath.Join(t.TempDir(), "missing.json"), f.outDir, f.exclPath)
	if !perr.IsCode(err, perr.ErrorCodeIO) {
		t.Fatalf("expected IO error, got %v", err)
	}
}

func TestRun_LegacyCatalog(t *testing.T) {
	f := newFixture(t)
	kit.WriteFile(t, f.compsPath, `["titanic"]`)
	kit.WriteFile(t, f.exclPath, `[]`)
	f.srv.SetKernels("titanic", []string{"a/one"})

	if _, err := f.run(t); err != nil {
		t.Fatalf("Run: %v", err)
	}
	kit.MustExist(t, catalog.KernelCatalogPath(f.outDir, "titanic"))
}

func TestRun_WriteThenMark(t *testing.T) {
	f := newFixture(t, "titanic")
	f.srv.SetKernels("titanic", []string{"a/one"})
	f.svc.afterWrite = func(string) error {
		return perr.IOf(fmt.Errorf("simulated crash"), "between write and mark")
	}

	if _, err := f.run(t); err == nil {
		t.Fatalf("expected the simulated crash to surface")
	}
	kit.MustExist(t, catalog.KernelCatalogPath(f.outDir, "titanic"))
	if len(f.snapshot(t)) != 0 {
		t.Fatalf("competition marked before its catalog was confirmed")
	}

	f.svc.afterWrite = nil
	if _, err := f.run(t); err != nil {
		t.Fatalf("resumed Run: %v", err)
	}
	if r := f.snapshot(t)["titanic"]; r != exclusion.ReasonFetched {
		t.Fatalf("reason = %q, want fetched", r)
	}
	if diff := cmp.Diff([]string{"a/one"}, f.kernelIDs(t, "titanic")); diff != "" {
		t.Fatalf("kernels (-want +got):\n%s", diff)
	}
}

func TestRun_WorkerPool(t *testing.T) {
	comps := make([]string, 0, 8)
	for i := range 8 {
		comps = append(comps, fmt.Sprintf("comp-%d", i))
	}
	f := newFixture(t, comps...)
	for i, c := range comps {
		f.srv.SetKernels(c, []string{fmt.Sprintf("u%d/k", i)})
	}
	f.svc.Cfg.Workers = 4

	rep, err := f.svc.Run(context.Background(), f.compsPath, f.outDir, f.exclPath)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Written != len(comps) {
		t.Fatalf("written = %d, want %d", rep.Written, len(comps))
	}
	snap := f.snapshot(t)
	for _, c := range comps {
		if snap[c] != exclusion.ReasonFetched {
			t.Fatalf("%s not marked: %v", c, snap)
		}
		kit.MustExist(t, catalog.KernelCatalogPath(f.outDir, c))
	}
}

func TestRun_Canceled(t *testing.T) {
	f := newFixture(t, "titanic")
	f.srv.SetKernels("titanic", []string{"a/one"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.svc.Run(ctx, f.compsPath, f.outDir, f.exclPath)
	if !perr.IsCode(err, perr.ErrorCodeCanceled) {
		t.Fatalf("expected Canceled, got %v", err)
	}
	if len(f.snapshot(t)) != 0 {
		t.Fatalf("canceled run marked competitions")
	}
}
