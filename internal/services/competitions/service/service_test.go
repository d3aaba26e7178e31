package service

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"kaggleharvest/internal/adapters/ingest/kaggle"
	"kaggleharvest/internal/adapters/ingest/kaggle/kaggletest"
	"kaggleharvest/internal/core/catalog"
	perr "kaggleharvest/internal/platform/errors"
	kit "kaggleharvest/internal/platform/testkit"

	"github.com/google/go-cmp/cmp"
)

func newClient(t *testing.T, srv *kaggletest.Server, key string) *kaggle.Client {
	t.Helper()
	c, err := kaggle.NewClient(kaggle.Options{
		BaseURL:     srv.URL,
		MaxRetries:  1,
		RetryBase:   time.Millisecond,
		RetryCap:    time.Millisecond,
		RatePerSec:  1000,
		Burst:       100,
		Credentials: kaggle.Credentials{Username: kaggletest.Username, Key: key},
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func ids(t *testing.T, path string) []string {
	t.Helper()
	cs, err := catalog.ReadCompetitions(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	out := make([]string, 0, len(cs))
	for _, c := range cs {
		out = append(out, c.ID)
	}
	return out
}

func TestNew_NilListerPanics(t *testing.T) {
	kit.MustPanic(t, func() { New(nil) })
}

func TestRun_FiltersAndIsIdempotent(t *testing.T) {
	srv := kaggletest.New(t)
	srv.SetCompetitions(
		[]string{"titanic", "house-prices"},
		[]string{"digit-recognizer", "Titanic"},
	)
	dir := t.TempDir()
	exclPath := filepath.Join(dir, "excluded_competitions.json")
	kit.WriteFile(t, exclPath, `["House-Prices"]`)

	svc := New(newClient(t, srv, kaggletest.Key))
	first := filepath.Join(dir, "a", "competitions.json")
	rep, err := svc.Run(context.Background(), first, exclPath)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if diff := cmp.Diff([]string{"titanic", "digit-recognizer"}, ids(t, first)); diff != "" {
		t.Fatalf("catalog (-want +got):\n%s", diff)
	}
	if rep.Listed != 4 || rep.Written != 2 || rep.Excluded != 1 || rep.Duplicates != 1 {
		t.Fatalf("report = %+v", rep.Rows())
	}

	second := filepath.Join(dir, "b", "competitions.json")
	if _, err := svc.Run(context.Background(), second, exclPath); err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if kit.ReadFile(t, first) != kit.ReadFile(t, second) {
		t.Fatalf("identical inputs gave different catalogs")
	}
	if got := kit.ReadFile(t, exclPath); got != `["House-Prices"]` {
		t.Fatalf("exclusion file was modified: %s", got)
	}
}

func TestRun_PassesThroughPlatformFields(t *testing.T) {
	srv := kaggletest.New(t)
	srv.SetCompetitions([]string{"titanic"})
	out := filepath.Join(t.TempDir(), "competitions.json")

	if _, err := New(newClient(t, srv, kaggletest.Key)).Run(context.Background(), out, ""); err != nil {
		t.Fatalf("Run: %v", err)
	}
	recs := kit.ReadJSON[[]map[string]any](t, out)
	if len(recs) != 1 {
		t.Fatalf("records = %v", recs)
	}
	if recs[0]["id"] != "titanic" || recs[0]["title"] != "Titanic" || recs[0]["kaggleId"] == nil {
		t.Fatalf("record = %v", recs[0])
	}
}

func TestRun_ListingFailureKeepsPreviousCatalog(t *testing.T) {
	srv := kaggletest.New(t)
	srv.SetCompetitions([]string{"titanic"})
	srv.FailAlways(kaggletest.CompetitionsKey, 503)
	out := filepath.Join(t.TempDir(), "competitions.json")
	kit.WriteFile(t, out, `["previous"]`)

	_, err := New(newClient(t, srv, kaggletest.Key)).Run(context.Background(), out, "")
	if !perr.IsCode(err, perr.ErrorCodeUnavailable) {
		t.Fatalf("expected Unavailable, got %v", err)
	}
	if got := kit.ReadFile(t, out); got != `["previous"]` {
		t.Fatalf("previous catalog replaced: %s", got)
	}
}

func TestRun_FatalInputs(t *testing.T) {
	srv := kaggletest.New(t)
	srv.SetCompetitions([]string{"titanic"})
	dir := t.TempDir()
	out := filepath.Join(dir, "competitions.json")

	_, err := New(newClient(t, srv, "wrong")).Run(context.Background(), out, "")
	if !perr.IsCode(err, perr.ErrorCodeUnauthorized) || !perr.Fatal(err) {
		t.Fatalf("expected fatal Unauthorized, got %v", err)
	}
	kit.MustNotExist(t, out)

	bad := filepath.Join(dir, "bad.json")
	kit.WriteFile(t, bad, `{"titanic": 3}`)
	_, err = New(newClient(t, srv, kaggletest.Key)).Run(context.Background(), out, bad)
	if !perr.Fatal(err) || !perr.IsMalformed(err) {
		t.Fatalf("expected malformed exclusion file to be fatal, got %v", err)
	}
	// rejected credentials never reach the route, so no listing happened at all
	if srv.Hits(kaggletest.CompetitionsKey) != 0 {
		t.Fatalf("listing should not start with a broken exclusion file, hits = %d", srv.Hits(kaggletest.CompetitionsKey))
	}
}

func TestRun_Canceled(t *testing.T) {
	srv := kaggletest.New(t)
	srv.SetCompetitions([]string{"titanic"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := filepath.Join(t.TempDir(), "competitions.json")
	_, err := New(newClient(t, srv, kaggletest.Key)).Run(ctx, out, "")
	if !perr.IsCode(err, perr.ErrorCodeCanceled) {
		t.Fatalf("expected Canceled, got %v", err)
	}
	kit.MustNotExist(t, out)
}
