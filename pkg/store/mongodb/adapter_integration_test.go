package mongodb

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/nimburion/userdirectory/pkg/directory"
	"github.com/nimburion/userdirectory/pkg/directory/directorytest"
	"github.com/nimburion/userdirectory/pkg/testutil"
)

// TestMongoBackend_Integration runs the backend contract against a real
// MongoDB server started with testcontainers.
func TestMongoBackend_Integration(t *testing.T) {
	testutil.RequireIntegration(t)

	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "mongo:7",
			ExposedPorts: []string{"27017/tcp"},
			WaitingFor:   wait.ForListeningPort("27017/tcp").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("Failed to start MongoDB container: %v", err)
	}
	defer func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("Failed to terminate container: %v", err)
		}
	}()

	endpoint, err := container.PortEndpoint(ctx, "27017/tcp", "mongodb")
	if err != nil {
		t.Fatalf("Failed to get endpoint: %v", err)
	}

	run := 0
	directorytest.RunBackendContract(t, directorytest.Contract{
		New: func(t *testing.T) (directory.Backend, string) {
			run++
			// A fresh database per store keeps ids and counters independent.
			return New(Config{Database: fmt.Sprintf("contract_%d", run)}, nil), endpoint + "/"
		},
		NamesQuery:   "{}",
		InvalidQuery: `{"$where": `,
	})
}
