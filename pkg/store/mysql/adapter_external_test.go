package mysql

import (
	"testing"
	"time"

	"github.com/nimburion/userdirectory/pkg/directory"
	"github.com/nimburion/userdirectory/pkg/directory/directorytest"
	"github.com/nimburion/userdirectory/pkg/store/sqlstore"
	"github.com/nimburion/userdirectory/pkg/testutil"
)

// TestMySQLBackend_External runs the backend contract against the server named
// by USERDIR_MYSQL_URL, e.g. "user:pass@tcp(localhost:3306)/users".
func TestMySQLBackend_External(t *testing.T) {
	dsn := testutil.ExternalDescriptor(t, "USERDIR_MYSQL_URL")

	cfg := sqlstore.Config{
		Table:        "userdir_contract",
		MaxOpenConns: 5,
		MaxIdleConns: 2,
		QueryTimeout: 10 * time.Second,
		EnsureSchema: true,
	}

	directorytest.RunBackendContract(t, directorytest.Contract{
		New: func(t *testing.T) (directory.Backend, string) {
			admin := New(cfg, nil)
			if !admin.Connect(dsn) {
				t.Fatalf("admin connect failed: %s", admin.GetLastError())
			}
			if _, ok := admin.ExecuteQuery("DROP TABLE IF EXISTS userdir_contract"); !ok {
				t.Fatalf("drop table failed: %s", admin.GetLastError())
			}
			admin.Disconnect()
			return New(cfg, nil), dsn
		},
		NamesQuery:   "SELECT name FROM userdir_contract ORDER BY id",
		InvalidQuery: "SELEC nonsense",
	})
}
