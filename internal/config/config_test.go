package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/m-rots/onedrived"
	"github.com/mitchellh/go-homedir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
max_put_size: 655360
max_get_size: 1048576
workers: 8
ignore_files:
  - "*.tmp"
  - /Private
proxies:
  https: proxy.local:3128
http_timeout: 30s
store:
  backend: bolt
  path: /var/lib/onedrived/registry.bolt
log:
  level: debug
account:
  id: abc
  type: business
  client_id: client
  refresh_token: token
drive:
  id: D1
  local_root: /data/OneDrive
`)

	config, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, int64(655360), config.MaxPutSize)
	assert.Equal(t, 8, config.Workers)
	assert.Equal(t, 30*time.Second, config.HTTPTimeout)
	assert.Equal(t, Store{Backend: "bolt", Path: "/var/lib/onedrived/registry.bolt"}, config.Store)
	assert.Equal(t, "debug", config.Log.Level)
	assert.Equal(t, Account{ID: "abc", Type: "business", ClientID: "client", RefreshToken: "token"}, config.Account)
	assert.Equal(t, Drive{ID: "D1", LocalRoot: "/data/OneDrive"}, config.Drive)

	assert.Equal(t, onedrived.DriveConfig{
		MaxGetSize:  1048576,
		MaxPutSize:  655360,
		IgnoreFiles: []string{"*.tmp", "/Private"},
		Proxies:     map[string]string{"https": "proxy.local:3128"},
	}, config.DriveDefaults())
}

func TestDefaults(t *testing.T) {
	config, err := Load(writeConfig(t, "account:\n  id: abc\n"))
	require.NoError(t, err)

	assert.Equal(t, onedrived.DefaultMaxPutSize, config.MaxPutSize)
	assert.Equal(t, onedrived.DefaultMaxGetSize, config.MaxGetSize)
	assert.Empty(t, config.IgnoreFiles)
	assert.Equal(t, 4, config.Workers)
	assert.Equal(t, 5*time.Minute, config.HTTPTimeout)
	assert.Equal(t, "sqlite", config.Store.Backend)
	assert.Equal(t, "info", config.Log.Level)
	assert.Equal(t, "personal", config.Account.Type)
	assert.NotContains(t, config.Store.Path, "~")
	assert.True(t, filepath.IsAbs(config.Drive.LocalRoot))
}

func TestEnvironment(t *testing.T) {
	t.Setenv("ONEDRIVED_WORKERS", "2")
	t.Setenv("ONEDRIVED_ACCOUNT_REFRESH_TOKEN", "from-env")
	t.Setenv("ONEDRIVED_STORE_BACKEND", "bolt")

	config, err := Load(writeConfig(t, "workers: 6\n"))
	require.NoError(t, err)

	assert.Equal(t, 2, config.Workers)
	assert.Equal(t, "from-env", config.Account.RefreshToken)
	assert.Equal(t, "bolt", config.Store.Backend)
}

func TestInvalid(t *testing.T) {
	var testCases = map[string]string{
		"negative size":   "max_put_size: -1\n",
		"unaligned size":  "max_put_size: 1000\n",
		"get size":        "max_get_size: 0\n",
		"no workers":      "workers: 0\n",
		"unknown backend": "store:\n  backend: postgres\n",
		"account type":    "account:\n  type: school\n",
	}

	for name, content := range testCases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, content))
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	homedir.DisableCache = true
	defer func() { homedir.DisableCache = false }()

	t.Setenv("HOME", t.TempDir())
	config, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "sqlite", config.Store.Backend)
}
