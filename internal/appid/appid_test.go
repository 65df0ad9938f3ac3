package appid

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/fulmenhq/gofulmen/appidentity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appidentityassets "github.com/policyworks/quotaledger/internal/assets/appidentity"
)

func prepareIdentityForTest(t *testing.T) {
	t.Helper()

	// gofulmen caches the identity and the embedded registration per process.
	appidentity.Reset()
	require.NoError(t, appidentity.RegisterEmbeddedIdentityYAML(appidentityassets.YAML))
	t.Cleanup(func() { appidentity.Reset() })
}

func chdirOutsideRepo(t *testing.T) {
	t.Helper()
	oldWD, err := os.Getwd()
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.Chdir(oldWD) })
	require.NoError(t, os.Chdir(t.TempDir()))
}

func TestGet_EmbeddedIdentityFallbackOutsideRepo(t *testing.T) {
	prepareIdentityForTest(t)
	t.Setenv(appidentity.EnvIdentityPath, "")
	chdirOutsideRepo(t)

	identity, err := Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "quotaledger", identity.BinaryName)
	assert.Equal(t, "QUOTALEDGER_", identity.EnvPrefix)
	assert.Equal(t, "policyworks", identity.Vendor)

	assert.Equal(t, "quotaledger", BinaryName(context.Background()))
	assert.Equal(t, "QUOTALEDGER_", EnvPrefix(context.Background()))
	assert.Equal(t, "quotaledger", TelemetryNamespace(context.Background()))
}

func TestGet_EnvVarRemainsAuthoritative(t *testing.T) {
	prepareIdentityForTest(t)

	missing := filepath.Join(t.TempDir(), "missing-app.yaml")
	t.Setenv(appidentity.EnvIdentityPath, missing)

	_, err := Get(context.Background())
	require.Error(t, err)

	var notFound *appidentity.NotFoundError
	assert.True(t, errors.As(err, &notFound), "expected NotFoundError, got %T", err)

	// Helpers still produce usable names.
	assert.Equal(t, DefaultBinaryName, BinaryName(context.Background()))
	assert.Equal(t, DefaultEnvPrefix, EnvPrefix(context.Background()))
}
