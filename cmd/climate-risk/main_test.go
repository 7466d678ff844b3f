package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kjstillabower/climate-risk-service/internal/models"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestPredictCommand(t *testing.T) {
	out, err := execute(t, "predict",
		"--city", "Lagos", "--population", "9,500,000", "--temperature-increase", "3",
		"--density", "high", "--infrastructure", "aging")
	require.NoError(t, err)
	assert.Contains(t, out, "high risk (100.0%)")
	assert.Contains(t, out, "Risk factors:")
	assert.Contains(t, out, "Recommendations:")
}

func TestPredictCommand_JSON(t *testing.T) {
	out, err := execute(t, "predict",
		"--city", "Oslo", "--population", "700000", "--temperature-increase", "1.5",
		"--density", "low", "--infrastructure", "new", "--json")
	require.NoError(t, err)

	var a models.Assessment
	require.NoError(t, json.Unmarshal([]byte(out), &a))
	// 20 base + 10 population + 15 temperature
	assert.Equal(t, "medium", a.RiskLevel)
	assert.InDelta(t, 45.0, a.RiskScore, 0.001)
	assert.Empty(t, a.RainfallPlot)
	assert.False(t, a.Saved)
}

func TestPredictCommand_InvalidInput(t *testing.T) {
	_, err := execute(t, "predict", "--city", "X", "--population", "50", "--temperature-increase", "9")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid input")
}

func TestCreateUserCommand_RequiresPassword(t *testing.T) {
	t.Setenv(newUserPasswordEnv, "")
	_, err := execute(t, "create-user", "--name", "Grace", "--email", "grace@example.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), newUserPasswordEnv)
}

// writeProjectConfig creates config/dev.yaml under a temp dir and makes it
// the working directory.
func writeProjectConfig(t *testing.T, yaml string) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "config"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config", "dev.yaml"), []byte(yaml), 0o644))
	t.Chdir(dir)
	t.Setenv("ENV_NAME", "dev")
	t.Setenv("SESSION_SECRET", "cli-test-secret-0123456789abcdef")
	t.Setenv("DATABASE_DRIVER", "")
	t.Setenv("DATABASE_URL", "")
}

func TestCreateUserCommand_RejectsMemoryDriver(t *testing.T) {
	writeProjectConfig(t, "database:\n  driver: \"memory\"\n  dsn: \"cli-create-user\"\n")
	t.Setenv(newUserPasswordEnv, "correct-horse")

	out, err := execute(t, "create-user", "--name", "Grace Hopper", "--email", "grace@example.com", "--admin")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "persistent database")
	assert.NotContains(t, out, "created")
}

func TestCreateUserCommand_Postgres(t *testing.T) {
	dsn := os.Getenv("CLIMATE_RISK_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("CLIMATE_RISK_POSTGRES_DSN not set")
	}
	writeProjectConfig(t, "database:\n  driver: \"postgres\"\n")
	t.Setenv("DATABASE_URL", dsn)
	t.Setenv(newUserPasswordEnv, "correct-horse")

	email := "cli-" + time.Now().UTC().Format("20060102150405.000000") + "@Example.com"
	out, err := execute(t, "create-user", "--name", "Grace Hopper", "--email", email, "--admin")
	require.NoError(t, err)
	assert.Contains(t, out, "created admin")
	assert.Contains(t, out, "<"+strings.ToLower(email)+">")
}
