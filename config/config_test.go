package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tlegeek1524/dekcha-backend/config"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoad_MissingFile_ReturnsDefaults(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, int64(25), cfg.PointsDivisor)
	assert.Equal(t, 7, cfg.CouponValidityDays)
	assert.Equal(t, 6, cfg.CouponCodeLength)
}

func TestLoad_PartialFile_KeepsDefaults(t *testing.T) {
	path := writeConfig(t, "port: 3000\n")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Port)
	assert.Equal(t, int64(25), cfg.PointsDivisor, "unset fields keep defaults")
	assert.Equal(t, "sqlite", cfg.Store.Driver)
}

func TestLoad_PostgresDriver(t *testing.T) {
	path := writeConfig(t, `
port: 8080
store:
  driver: postgres
  host: db.internal
  port: 5432
  user: dekcha
  password: secret
  dbname: loyalty
points_divisor: 25
coupon_validity_days: 7
coupon_code_length: 6
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "db.internal", cfg.Store.Host)
	assert.Equal(t, "loyalty", cfg.Store.DBName)
}

func TestLoad_Validation(t *testing.T) {
	cases := map[string]string{
		"bad driver":            "store:\n  driver: mongo\n",
		"postgres without host": "store:\n  driver: postgres\n",
		"negative divisor":      "points_divisor: -1\n",
		"negative validity":     "coupon_validity_days: -1\n",
		"bad port":              "port: 99999\n",
	}
	for name, contents := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := config.Load(writeConfig(t, contents))
			assert.Error(t, err)
		})
	}
}

func TestLoad_MalformedYAML(t *testing.T) {
	_, err := config.Load(writeConfig(t, "port: [not a number\n"))
	assert.Error(t, err)
}
