package mysql

import (
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/nimburion/userdirectory/pkg/store/sqlstore"
)

// Disconnect prevents subsequent operations
func TestProperty_DisconnectPreventsSubsequentOperations(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 25
	properties := gopter.NewProperties(params)

	properties.Property("every operation after disconnect fails without touching the database", prop.ForAll(
		func(name string, age, userID int, query string) bool {
			db, mock, err := sqlmock.New()
			if err != nil {
				return false
			}
			mock.ExpectClose()

			b := New(sqlstore.Config{
				Open: func(string, string) (*sql.DB, error) { return db, nil },
			}, nil)
			if !b.Connect("user:pass@tcp(localhost:3306)/users") {
				return false
			}
			b.Disconnect()

			_, queryOK := b.ExecuteQuery(query)
			ok := !b.InsertUser(name, age) &&
				!b.UpdateUser(userID, name, age) &&
				!b.DeleteUser(userID) &&
				b.GetUserName(userID) == "" &&
				b.GetUserCount() == 0 &&
				!queryOK &&
				b.GetLastError() != ""
			return ok && mock.ExpectationsWereMet() == nil
		},
		gen.AlphaString(),
		gen.IntRange(0, 150),
		gen.Int(),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}
