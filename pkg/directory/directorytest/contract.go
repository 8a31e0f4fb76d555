package directorytest

import (
	"sort"
	"strings"
	"testing"

	"github.com/nimburion/userdirectory/pkg/directory"
)

// Contract describes a backend under conformance test.
type Contract struct {
	// New returns an empty, disconnected backend and a descriptor that connects it.
	// Ids must be assigned sequentially from 1 on the returned store.
	New func(t *testing.T) (directory.Backend, string)
	// NamesQuery, when set, is a native query returning the name of every user.
	NamesQuery string
	// InvalidQuery, when set, is a native query the backend must reject.
	InvalidQuery string
}

// RunBackendContract runs the shared backend conformance suite.
func RunBackendContract(t *testing.T, c Contract) {
	t.Helper()

	connected := func(t *testing.T) directory.Backend {
		t.Helper()
		b, descriptor := c.New(t)
		if !b.Connect(descriptor) {
			t.Fatalf("Connect(%q) failed: %s", descriptor, b.GetLastError())
		}
		t.Cleanup(b.Disconnect)
		return b
	}

	t.Run("disconnected_before_connect", func(t *testing.T) {
		b, _ := c.New(t)
		if b.IsConnected() {
			t.Fatal("expected IsConnected() false before Connect")
		}
		if b.InsertUser("Alice", 25) {
			t.Fatal("expected InsertUser to fail before Connect")
		}
		if b.GetLastError() == "" {
			t.Fatal("expected last error after failed InsertUser")
		}
		if got := b.GetUserCount(); got != 0 {
			t.Fatalf("expected count 0 while disconnected, got %d", got)
		}
	})

	t.Run("connect_disconnect", func(t *testing.T) {
		b, descriptor := c.New(t)
		if !b.Connect(descriptor) {
			t.Fatalf("Connect failed: %s", b.GetLastError())
		}
		if !b.IsConnected() {
			t.Fatal("expected IsConnected() true after Connect")
		}
		b.Disconnect()
		if b.IsConnected() {
			t.Fatal("expected IsConnected() false after Disconnect")
		}
		b.Disconnect()
		if b.GetUserName(1) != "" {
			t.Fatal("expected empty name while disconnected")
		}
	})

	t.Run("insert_and_read", func(t *testing.T) {
		b := connected(t)
		if !b.InsertUser("Alice", 25) {
			t.Fatalf("InsertUser failed: %s", b.GetLastError())
		}
		if got := b.GetUserName(1); got != "Alice" {
			t.Fatalf("GetUserName(1) = %q, want Alice", got)
		}
		if got := b.GetUserAge(1); got != 25 {
			t.Fatalf("GetUserAge(1) = %d, want 25", got)
		}
		if got := b.GetUserCount(); got != 1 {
			t.Fatalf("GetUserCount() = %d, want 1", got)
		}
	})

	t.Run("not_found_sentinels", func(t *testing.T) {
		b := connected(t)
		if got := b.GetUserName(999); got != "" {
			t.Fatalf("GetUserName(999) = %q, want empty", got)
		}
		if got := b.GetUserAge(999); got != directory.AgeNotFound {
			t.Fatalf("GetUserAge(999) = %d, want %d", got, directory.AgeNotFound)
		}
		if b.UpdateUser(999, "Ghost", 1) {
			t.Fatal("expected UpdateUser of unknown id to fail")
		}
		if b.DeleteUser(999) {
			t.Fatal("expected DeleteUser of unknown id to fail")
		}
		if !strings.Contains(b.GetLastError(), directory.ErrUserNotFound.Error()) {
			t.Fatalf("expected not-found last error, got %q", b.GetLastError())
		}
	})

	t.Run("update", func(t *testing.T) {
		b := connected(t)
		b.InsertUser("Alice", 25)
		if !b.UpdateUser(1, "Bob", 30) {
			t.Fatalf("UpdateUser failed: %s", b.GetLastError())
		}
		if b.GetUserName(1) != "Bob" || b.GetUserAge(1) != 30 {
			t.Fatalf("unexpected record after update: %q/%d", b.GetUserName(1), b.GetUserAge(1))
		}
		if b.UpdateUser(1, "", 30) {
			t.Fatal("expected UpdateUser with empty name to fail")
		}
	})

	t.Run("delete", func(t *testing.T) {
		b := connected(t)
		b.InsertUser("Alice", 25)
		if !b.DeleteUser(1) {
			t.Fatalf("DeleteUser failed: %s", b.GetLastError())
		}
		if b.GetUserName(1) != "" {
			t.Fatal("expected deleted user to be gone")
		}
		if got := b.GetUserCount(); got != 0 {
			t.Fatalf("GetUserCount() = %d after delete, want 0", got)
		}
	})

	t.Run("validation", func(t *testing.T) {
		b := connected(t)
		if b.InsertUser("", 10) {
			t.Fatal("expected empty name to be rejected")
		}
		if b.InsertUser("Neg", -1) {
			t.Fatal("expected negative age to be rejected")
		}
		if !strings.Contains(b.GetLastError(), directory.ErrInvalidUser.Error()) {
			t.Fatalf("expected invalid-user last error, got %q", b.GetLastError())
		}
		if got := b.GetUserCount(); got != 0 {
			t.Fatalf("GetUserCount() = %d after rejected inserts, want 0", got)
		}
	})

	t.Run("names_in_id_order", func(t *testing.T) {
		b := connected(t)
		for _, name := range []string{"Alice", "Bob", "Charlie"} {
			if !b.InsertUser(name, 20) {
				t.Fatalf("InsertUser(%s) failed: %s", name, b.GetLastError())
			}
		}
		got := b.GetAllUserNames()
		want := []string{"Alice", "Bob", "Charlie"}
		if strings.Join(got, ",") != strings.Join(want, ",") {
			t.Fatalf("GetAllUserNames() = %v, want %v", got, want)
		}
	})

	t.Run("last_error_lifecycle", func(t *testing.T) {
		b := connected(t)
		if b.GetLastError() != "" {
			t.Fatalf("expected no error after connect, got %q", b.GetLastError())
		}
		b.DeleteUser(42)
		if b.GetLastError() == "" {
			t.Fatal("expected last error after failed delete")
		}
		b.ClearError()
		if b.GetLastError() != "" {
			t.Fatalf("expected cleared error, got %q", b.GetLastError())
		}
	})

	if c.NamesQuery != "" {
		t.Run("query_rows", func(t *testing.T) {
			b := connected(t)
			b.InsertUser("Alice", 25)
			b.InsertUser("Bob", 30)
			rows, ok := b.ExecuteQuery(c.NamesQuery)
			if !ok {
				t.Fatalf("ExecuteQuery(%q) failed: %s", c.NamesQuery, b.GetLastError())
			}
			sort.Strings(rows)
			if strings.Join(rows, ",") != "Alice,Bob" {
				t.Fatalf("ExecuteQuery rows = %v, want [Alice Bob]", rows)
			}
		})

		t.Run("query_success_without_rows", func(t *testing.T) {
			b := connected(t)
			rows, ok := b.ExecuteQuery(c.NamesQuery)
			if !ok {
				t.Fatalf("ExecuteQuery on empty store failed: %s", b.GetLastError())
			}
			if len(rows) != 0 {
				t.Fatalf("expected no rows, got %v", rows)
			}
		})
	}

	if c.InvalidQuery != "" {
		t.Run("query_rejected", func(t *testing.T) {
			b := connected(t)
			if _, ok := b.ExecuteQuery(c.InvalidQuery); ok {
				t.Fatalf("expected ExecuteQuery(%q) to fail", c.InvalidQuery)
			}
			if b.GetLastError() == "" {
				t.Fatal("expected last error after rejected query")
			}
		})
	}

	t.Run("through_service", func(t *testing.T) {
		b, descriptor := c.New(t)
		svc := directory.NewService(b)
		if !svc.Initialize(descriptor) {
			t.Fatalf("Initialize failed: %s", b.GetLastError())
		}
		t.Cleanup(b.Disconnect)

		if !svc.CreateRecord("Alice", 25) {
			t.Fatalf("CreateRecord failed: %s", b.GetLastError())
		}
		if got := svc.FetchSummary(1); got != "Name: Alice, Age: 25" {
			t.Fatalf("FetchSummary(1) = %q", got)
		}
		if got := svc.CountRecords(); got != 1 {
			t.Fatalf("CountRecords() = %d, want 1", got)
		}
		if !svc.RemoveRecord(1) {
			t.Fatalf("RemoveRecord failed: %s", b.GetLastError())
		}
		if got := svc.CountRecords(); got != 0 {
			t.Fatalf("CountRecords() = %d after remove, want 0", got)
		}

		b.Disconnect()
		if svc.CreateRecord("Bob", 30) {
			t.Fatal("expected CreateRecord to fail once the backend disconnected")
		}
	})
}

