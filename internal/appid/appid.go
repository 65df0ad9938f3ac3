// Package appid resolves the application identity, preferring an external
// .fulmen/app.yaml and falling back to the copy embedded in the binary.
package appid

import (
	"context"
	"strings"

	"github.com/fulmenhq/gofulmen/appidentity"

	appidentityassets "github.com/policyworks/quotaledger/internal/assets/appidentity"
)

// Fallbacks used when no identity can be loaded at all.
const (
	DefaultBinaryName = "quotaledger"
	DefaultEnvPrefix  = "QUOTALEDGER_"
)

func init() {
	// Explicit identity paths (FULMEN_APP_IDENTITY_PATH) stay authoritative;
	// the embedded copy only serves binaries run outside the repository.
	_ = appidentity.RegisterEmbeddedIdentityYAML(appidentityassets.YAML)
}

// Get returns the resolved identity.
func Get(ctx context.Context) (*appidentity.Identity, error) {
	return appidentity.Get(ctx)
}

// BinaryName returns the identity's binary name or DefaultBinaryName.
func BinaryName(ctx context.Context) string {
	if identity, err := Get(ctx); err == nil && identity != nil && strings.TrimSpace(identity.BinaryName) != "" {
		return identity.BinaryName
	}
	return DefaultBinaryName
}

// EnvPrefix returns the identity's environment prefix or DefaultEnvPrefix.
func EnvPrefix(ctx context.Context) string {
	if identity, err := Get(ctx); err == nil && identity != nil && strings.TrimSpace(identity.EnvPrefix) != "" {
		return identity.EnvPrefix
	}
	return DefaultEnvPrefix
}

// TelemetryNamespace returns the metric namespace, defaulting to the binary name.
func TelemetryNamespace(ctx context.Context) string {
	if identity, err := Get(ctx); err == nil && identity != nil && strings.TrimSpace(identity.Metadata.TelemetryNamespace) != "" {
		return identity.Metadata.TelemetryNamespace
	}
	return BinaryName(ctx)
}
