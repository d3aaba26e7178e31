package kaggle

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"kaggleharvest/internal/platform/bind"
	"kaggleharvest/internal/platform/config"
	perr "kaggleharvest/internal/platform/errors"
)

// Credentials is the platform API key pair used for basic auth
type Credentials struct {
	Username string `json:"username" validate:"required"`
	Key      string `json:"key" validate:"required"`
}

// LoadCredentials resolves credentials the way the official tooling does:
// KAGGLE_USERNAME and KAGGLE_KEY first, then kaggle.json under
// KAGGLE_CONFIG_DIR, then ~/.kaggle/kaggle.json
func LoadCredentials(cfg config.Conf) (Credentials, error) {
	kc := cfg.Prefix("KAGGLE_")
	user := kc.MayString("USERNAME", "")
	key := kc.MayString("KEY", "")
	if user != "" && key != "" {
		return Credentials{Username: user, Key: key}, nil
	}

	dir := kc.MayPath("CONFIG_DIR", "~/.kaggle")
	path := filepath.Join(dir, "kaggle.json")
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Credentials{}, perr.Unauthorizedf("no credentials: set KAGGLE_USERNAME and KAGGLE_KEY or create %s", path)
		}
		return Credentials{}, perr.Wrapf(err, perr.ErrorCodeUnauthorized, "read credentials %s", path)
	}
	creds, err := bind.DecodeBytes[Credentials](data)
	if err != nil {
		return Credentials{}, perr.Wrapf(err, perr.ErrorCodeUnauthorized, "invalid credentials file %s", path)
	}
	return creds, nil
}
