package redis

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/nimburion/userdirectory/pkg/directory"
	"github.com/nimburion/userdirectory/pkg/testutil"
)

func TestConnect_InvalidDescriptor(t *testing.T) {
	tests := []struct {
		name       string
		descriptor string
	}{
		{name: "empty", descriptor: ""},
		{name: "wrong scheme", descriptor: "http://localhost:6379"},
		{name: "bad db", descriptor: "redis://localhost:6379/notanumber"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := New(Config{}, nil)
			if b.Connect(tt.descriptor) {
				t.Fatalf("expected Connect(%q) to fail", tt.descriptor)
			}
			if !strings.Contains(b.GetLastError(), directory.ErrInvalidDescriptor.Error()) {
				t.Fatalf("unexpected last error %q", b.GetLastError())
			}
		})
	}
}

func TestConnect_UnreachableServer(t *testing.T) {
	log := &testutil.MockLogger{}
	b := New(Config{DialTimeout: 500 * time.Millisecond, OperationTimeout: time.Second}, log)

	if b.Connect("redis://localhost:9999/0") {
		t.Fatal("expected error when connecting to non-existent Redis")
	}
	if b.IsConnected() {
		t.Fatal("expected backend to stay disconnected")
	}
	if !strings.Contains(b.GetLastError(), "failed to ping redis") {
		t.Fatalf("unexpected last error %q", b.GetLastError())
	}
	if _, ok := log.Find("connect failed"); !ok {
		t.Fatal("expected connect failure to be logged")
	}
}

func TestOperations_Disconnected(t *testing.T) {
	b := New(Config{}, nil)

	if b.InsertUser("Alice", 25) {
		t.Fatal("expected InsertUser to fail")
	}
	if b.GetUserAge(1) != directory.AgeNotFound {
		t.Fatal("expected AgeNotFound while disconnected")
	}
	if b.GetAllUserNames() != nil {
		t.Fatal("expected nil names while disconnected")
	}
	if b.GetUserCount() != 0 {
		t.Fatal("expected zero count while disconnected")
	}
	if !strings.Contains(b.GetLastError(), directory.ErrNotConnected.Error()) {
		t.Fatalf("unexpected last error %q", b.GetLastError())
	}
	b.Disconnect()
}

func TestValidationPrecedesConnectivity(t *testing.T) {
	b := New(Config{}, nil)
	if b.UpdateUser(1, "", 10) {
		t.Fatal("expected UpdateUser to reject empty name")
	}
	if !strings.Contains(b.GetLastError(), directory.ErrInvalidUser.Error()) {
		t.Fatalf("unexpected last error %q", b.GetLastError())
	}
}

func TestExecuteQuery_RejectsNonUserPatterns(t *testing.T) {
	b := New(Config{}, nil)
	for _, q := range []string{"", "*", "next_id", "users"} {
		if _, ok := b.ExecuteQuery(q); ok {
			t.Fatalf("expected ExecuteQuery(%q) to fail", q)
		}
		if !strings.Contains(b.GetLastError(), directory.ErrUnsupportedQuery.Error()) {
			t.Fatalf("unexpected last error for %q: %q", q, b.GetLastError())
		}
	}
}

func TestKeys(t *testing.T) {
	b := New(Config{KeyPrefix: "app:"}, nil)
	if got := b.userKey(7); got != "app:user:7" {
		t.Fatalf("userKey(7) = %q", got)
	}
	if got := b.key("next_id"); got != "app:next_id" {
		t.Fatalf("key(next_id) = %q", got)
	}
}

func TestWithOperationTimeout_PreservesExistingDeadline(t *testing.T) {
	b := New(Config{OperationTimeout: 10 * time.Second}, nil)
	parent, parentCancel := context.WithTimeout(context.Background(), time.Second)
	defer parentCancel()

	ctx, cancel := b.withOperationTimeout(parent)
	defer cancel()

	want, _ := parent.Deadline()
	got, _ := ctx.Deadline()
	if !got.Equal(want) {
		t.Fatalf("deadline = %v, want %v", got, want)
	}
}
