package dynamodb

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/nimburion/userdirectory/pkg/directory"
	"github.com/nimburion/userdirectory/pkg/directory/directorytest"
	"github.com/nimburion/userdirectory/pkg/testutil"
)

func newFakeBackend(fake *fakeAPI, cfg Config) *Backend {
	if cfg.Region == "" {
		cfg.Region = "eu-west-1"
	}
	cfg.AccessKeyID = "test"
	cfg.SecretAccessKey = "test"
	cfg.NewClient = func(aws.Config, ...func(*dynamodb.Options)) API { return fake }
	return New(cfg, nil)
}

func TestBackendContract(t *testing.T) {
	directorytest.RunBackendContract(t, directorytest.Contract{
		New: func(t *testing.T) (directory.Backend, string) {
			return newFakeBackend(newFakeAPI(), Config{}), "http://localhost:8000"
		},
		NamesQuery:   `SELECT * FROM "users"`,
		InvalidQuery: "SELEC nonsense",
	})
}

func TestConnect_RequiresRegion(t *testing.T) {
	b := New(Config{}, nil)
	if b.Connect("") {
		t.Fatal("expected Connect to fail without region")
	}
	if !strings.Contains(b.GetLastError(), "aws region is required") {
		t.Fatalf("unexpected last error %q", b.GetLastError())
	}
}

func TestConnect_PingFailure(t *testing.T) {
	fake := newFakeAPI()
	fake.listErr = errors.New("no route to host")
	log := &testutil.MockLogger{}
	b := newFakeBackend(fake, Config{})
	b.logger = log

	if b.Connect("http://localhost:8000") {
		t.Fatal("expected Connect to fail")
	}
	if !strings.Contains(b.GetLastError(), "dynamodb ping failed") {
		t.Fatalf("unexpected last error %q", b.GetLastError())
	}
	if _, ok := log.Find("connect failed"); !ok {
		t.Fatal("expected connect failure to be logged")
	}
}

func TestConnect_AppliesEndpointOverride(t *testing.T) {
	var applied dynamodb.Options
	b := New(Config{
		Region:          "us-east-1",
		AccessKeyID:     "test",
		SecretAccessKey: "test",
		NewClient: func(_ aws.Config, optFns ...func(*dynamodb.Options)) API {
			for _, fn := range optFns {
				fn(&applied)
			}
			return newFakeAPI()
		},
	}, nil)

	if !b.Connect("http://localhost:8000") {
		t.Fatalf("Connect failed: %s", b.GetLastError())
	}
	if got := aws.ToString(applied.BaseEndpoint); got != "http://localhost:8000" {
		t.Fatalf("BaseEndpoint = %q", got)
	}
}

func TestConnect_EnsureTable(t *testing.T) {
	fake := newFakeAPI()
	fake.tableExists = false
	b := newFakeBackend(fake, Config{EnsureTable: true})

	if !b.Connect("") {
		t.Fatalf("Connect failed: %s", b.GetLastError())
	}
	b.Disconnect()
	if !b.Connect("") {
		t.Fatalf("second Connect failed: %s", b.GetLastError())
	}
	if fake.created != 1 {
		t.Fatalf("CreateTable called %d times, want 1", fake.created)
	}
}

func TestInsertUser_AllocatesSequentialIDs(t *testing.T) {
	fake := newFakeAPI()
	b := newFakeBackend(fake, Config{})
	b.Connect("")

	for _, name := range []string{"Alice", "Bob", "Charlie"} {
		if !b.InsertUser(name, 30) {
			t.Fatalf("InsertUser(%s) failed: %s", name, b.GetLastError())
		}
	}
	seq, _ := intAttribute(fake.items[counterID], "seq")
	if seq != 3 {
		t.Fatalf("counter = %d, want 3", seq)
	}
	if got := b.GetUserName(3); got != "Charlie" {
		t.Fatalf("GetUserName(3) = %q", got)
	}
	if got := b.GetUserName(counterID); got != "" {
		t.Fatalf("counter item must not read as a user, got %q", got)
	}
}

func TestGetAllUserNames_SortsAcrossPages(t *testing.T) {
	fake := newFakeAPI()
	fake.pageSize = 1
	b := newFakeBackend(fake, Config{})
	b.Connect("")
	b.InsertUser("Alice", 1)
	b.InsertUser("Bob", 2)
	b.InsertUser("Charlie", 3)

	if got := strings.Join(b.GetAllUserNames(), ","); got != "Alice,Bob,Charlie" {
		t.Fatalf("GetAllUserNames() = %s", got)
	}
	if got := b.GetUserCount(); got != 3 {
		t.Fatalf("GetUserCount() = %d, want 3", got)
	}
}

func TestExecuteQuery_FollowsNextToken(t *testing.T) {
	fake := newFakeAPI()
	b := newFakeBackend(fake, Config{})
	b.Connect("")
	b.InsertUser("Alice", 1)
	b.InsertUser("Bob", 2)

	rows, ok := b.ExecuteQuery(`SELECT * FROM "users"`)
	if !ok {
		t.Fatalf("ExecuteQuery failed: %s", b.GetLastError())
	}
	if strings.Join(rows, ",") != "Alice,Bob" {
		t.Fatalf("rows = %v", rows)
	}
	if len(fake.statements) != 2 {
		t.Fatalf("expected two ExecuteStatement calls, got %d", len(fake.statements))
	}
}

func TestThrottling_IsRecordedAndLogged(t *testing.T) {
	fake := newFakeAPI()
	log := &testutil.MockLogger{}
	b := newFakeBackend(fake, Config{})
	b.logger = log
	b.Connect("")

	fake.failNext = &types.ProvisionedThroughputExceededException{Message: aws.String("slow down")}
	if b.GetUserName(1) != "" {
		t.Fatal("expected empty name on throttling")
	}
	if _, ok := log.Find("DynamoDB request throttled"); !ok {
		t.Fatal("expected throttling warning")
	}
	if !strings.Contains(b.GetLastError(), "slow down") {
		t.Fatalf("unexpected last error %q", b.GetLastError())
	}
}

func TestIsThrottlingError(t *testing.T) {
	if IsThrottlingError(nil) {
		t.Fatal("nil error must return false")
	}
	if IsThrottlingError(errors.New("x")) {
		t.Fatal("generic error must return false")
	}
	if !IsThrottlingError(&types.ProvisionedThroughputExceededException{}) {
		t.Fatal("expected throttling error detection")
	}
}

func TestWithOperationTimeout_UsesBackendTimeoutWhenNoDeadline(t *testing.T) {
	b := New(Config{OperationTimeout: 2 * time.Second}, nil)

	ctx, cancel := b.withOperationTimeout(context.Background())
	defer cancel()

	deadline, ok := ctx.Deadline()
	if !ok {
		t.Fatal("expected deadline from operation timeout")
	}
	if remaining := time.Until(deadline); remaining <= 0 || remaining > 2*time.Second {
		t.Fatalf("unexpected remaining timeout: %v", remaining)
	}
}
