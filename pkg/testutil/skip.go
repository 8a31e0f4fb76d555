package testutil

import (
	"os"
	"testing"

	"github.com/testcontainers/testcontainers-go"
)

// IntegrationEnv opts into the container-backed store tests.
const IntegrationEnv = "USERDIR_INTEGRATION_TESTS"

// RequireIntegration skips the test in short mode, in CI unless IntegrationEnv
// is set, and whenever no container runtime answers.
func RequireIntegration(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	if os.Getenv(IntegrationEnv) == "" && os.Getenv("CI") != "" {
		t.Skipf("skipping integration test (set %s=1 to run)", IntegrationEnv)
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)
}

// ExternalDescriptor returns the descriptor held in env, skipping the test when
// it is unset. It lets store tests run against an already provisioned server.
func ExternalDescriptor(t *testing.T, env string) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	descriptor := os.Getenv(env)
	if descriptor == "" {
		t.Skipf("set %s to run against an external server", env)
	}
	return descriptor
}
