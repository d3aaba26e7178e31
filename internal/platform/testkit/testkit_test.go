package testkit

import (
	"path/filepath"
	"testing"
)

func TestMustPanic(t *testing.T) {
	t.Parallel()

	MustPanic(t, func() {
		panic("boom")
	})
}

func TestMustContain(t *testing.T) {
	t.Parallel()

	MustContain(t, "alpha beta gamma", "beta")
}

func TestFileHelpers(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	p := filepath.Join(dir, "nested", "catalog.json")
	MustNotExist(t, p)

	WriteJSON(t, p, []map[string]string{{"id": "titanic"}})
	MustExist(t, p)
	MustContain(t, ReadFile(t, p), `"id": "titanic"`)

	got := ReadJSON[[]map[string]string](t, p)
	if len(got) != 1 || got[0]["id"] != "titanic" {
		t.Fatalf("ReadJSON = %#v", got)
	}

	raw := filepath.Join(dir, "raw.txt")
	WriteFile(t, raw, "hello")
	if ReadFile(t, raw) != "hello" {
		t.Fatalf("WriteFile/ReadFile round trip failed")
	}
}
