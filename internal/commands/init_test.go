package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwsmith1983/tripwire/internal/config"
)

func TestRunInit_ScaffoldsLoadableProject(t *testing.T) {
	project := filepath.Join(t.TempDir(), "demo")
	var out bytes.Buffer
	require.NoError(t, runInit(&out, project, "memory"))

	cfg, err := config.Load(project)
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Provider)
	assert.Equal(t, "TRIPWIRE_KEY_ENCRYPTION_KEY", cfg.Credential.EnvVar)

	_, err = loadStrategyFile(filepath.Join(project, "strategies", "example.yaml"))
	require.NoError(t, err)
	_, err = loadEventFile(filepath.Join(project, "events", "example.json"))
	require.NoError(t, err)

	assert.Contains(t, out.String(), "export TRIPWIRE_KEY_ENCRYPTION_KEY=")
}

func TestRunInit_Providers(t *testing.T) {
	for _, p := range []string{"postgres", "dynamodb"} {
		t.Run(p, func(t *testing.T) {
			project := filepath.Join(t.TempDir(), p)
			require.NoError(t, runInit(&bytes.Buffer{}, project, p))
			cfg, err := config.Load(project)
			require.NoError(t, err)
			assert.Equal(t, p, cfg.Provider)
		})
	}
}

func TestRunInit_RefusesExistingConfig(t *testing.T) {
	project := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(project, config.FileName), []byte("provider: memory\n"), 0o644))

	err := runInit(&bytes.Buffer{}, project, "memory")
	assert.ErrorContains(t, err, "already exists")
}

func TestRunInit_UnknownProvider(t *testing.T) {
	err := runInit(&bytes.Buffer{}, filepath.Join(t.TempDir(), "x"), "etcd")
	assert.ErrorContains(t, err, "unsupported provider")
}
