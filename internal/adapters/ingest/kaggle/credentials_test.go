package kaggle

import (
	"path/filepath"
	"testing"

	"kaggleharvest/internal/platform/config"
	perr "kaggleharvest/internal/platform/errors"
	kit "kaggleharvest/internal/platform/testkit"
)

func TestLoadCredentials_EnvWins(t *testing.T) {
	t.Setenv("KAGGLE_USERNAME", "alice")
	t.Setenv("KAGGLE_KEY", "secret")
	t.Setenv("KAGGLE_CONFIG_DIR", t.TempDir())

	got, err := LoadCredentials(config.New())
	if err != nil {
		t.Fatal(err)
	}
	if got != (Credentials{Username: "alice", Key: "secret"}) {
		t.Fatalf("got %+v", got)
	}
}

func TestLoadCredentials_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("KAGGLE_USERNAME", "")
	t.Setenv("KAGGLE_KEY", "")
	t.Setenv("KAGGLE_CONFIG_DIR", dir)

	kit.WriteJSON(t, filepath.Join(dir, "kaggle.json"), map[string]string{"username": "bob", "key": "k3y"})
	got, err := LoadCredentials(config.New())
	if err != nil {
		t.Fatal(err)
	}
	if got.Username != "bob" || got.Key != "k3y" {
		t.Fatalf("got %+v", got)
	}
}

func TestLoadCredentials_Failures(t *testing.T) {
	t.Setenv("KAGGLE_USERNAME", "only-user")
	t.Setenv("KAGGLE_KEY", "")

	dir := t.TempDir()
	t.Setenv("KAGGLE_CONFIG_DIR", dir)
	_, err := LoadCredentials(config.New())
	if !perr.IsCode(err, perr.ErrorCodeUnauthorized) {
		t.Fatalf("missing file: expected Unauthorized, got %v", err)
	}
	kit.MustContain(t, err.Error(), "kaggle.json")

	kit.WriteFile(t, filepath.Join(dir, "kaggle.json"), `{"username":"x"}`)
	_, err = LoadCredentials(config.New())
	if !perr.IsCode(err, perr.ErrorCodeUnauthorized) {
		t.Fatalf("incomplete file: expected Unauthorized, got %v", err)
	}

	kit.WriteFile(t, filepath.Join(dir, "kaggle.json"), `{`)
	_, err = LoadCredentials(config.New())
	if !perr.IsCode(err, perr.ErrorCodeUnauthorized) || !perr.Fatal(err) {
		t.Fatalf("broken file: expected fatal Unauthorized, got %v", err)
	}
}
