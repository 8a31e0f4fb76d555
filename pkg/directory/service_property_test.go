package directory_test

import (
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/nimburion/userdirectory/pkg/directory"
	"github.com/nimburion/userdirectory/pkg/directory/directorytest"
)

// TestProperty_ServiceGating verifies the gating and delegation rules of the
// user directory service against arbitrary inputs.
func TestProperty_ServiceGating(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("uninitialized service never reaches the backend", prop.ForAll(
		func(name string, age, userID int) bool {
			mock := directorytest.NewMockBackend().AlwaysConnected()
			svc := directory.NewService(mock)

			ok := !svc.CreateRecord(name, age) &&
				svc.FetchSummary(userID) == "" &&
				!svc.RemoveRecord(userID) &&
				!svc.UpdateRecord(userID, name, age) &&
				svc.CountRecords() == directory.CountUnavailable
			return ok && len(mock.Calls()) == 0
		},
		gen.AlphaString(),
		gen.IntRange(-10, 150),
		gen.Int(),
	))

	properties.Property("initialized and connected service delegates every operation", prop.ForAll(
		func(name string, age, userID int) bool {
			mock := directorytest.NewMockBackend().AlwaysConnected()
			mock.InsertUserFunc = func(string, int) bool { return true }
			mock.DeleteUserFunc = func(int) bool { return true }
			mock.GetUserNameFunc = func(int) string { return name }
			mock.GetUserAgeFunc = func(int) int { return age }
			svc := directory.NewService(mock)
			if !svc.Initialize("descriptor") {
				return false
			}

			svc.CreateRecord(name, age)
			svc.FetchSummary(userID)
			svc.RemoveRecord(userID)
			svc.CountRecords()

			return mock.CallCount(directorytest.MethodInsertUser) == 1 &&
				mock.CallCount(directorytest.MethodGetUserName) == 1 &&
				mock.CallCount(directorytest.MethodDeleteUser) == 1 &&
				mock.CallCount(directorytest.MethodGetUserCount) == 1
		},
		gen.AlphaString(),
		gen.IntRange(0, 150),
		gen.Int(),
	))

	properties.Property("empty name always yields empty summary", prop.ForAll(
		func(age, userID int) bool {
			mock := directorytest.NewMockBackend().AlwaysConnected()
			mock.GetUserNameFunc = func(int) string { return "" }
			mock.GetUserAgeFunc = func(int) int { return age }
			svc := directory.NewService(mock)
			svc.Initialize("descriptor")
			return svc.FetchSummary(userID) == ""
		},
		gen.Int(),
		gen.Int(),
	))

	properties.Property("non-empty name yields formatted summary", prop.ForAll(
		func(name string, age int) bool {
			mock := directorytest.NewMockBackend().AlwaysConnected()
			mock.GetUserNameFunc = func(int) string { return name }
			mock.GetUserAgeFunc = func(int) int { return age }
			svc := directory.NewService(mock)
			svc.Initialize("descriptor")
			return svc.FetchSummary(1) == fmt.Sprintf("Name: %s, Age: %d", name, age)
		},
		gen.Identifier(),
		gen.IntRange(0, 150),
	))

	properties.Property("count is returned verbatim once initialized", prop.ForAll(
		func(count int) bool {
			mock := directorytest.NewMockBackend().AlwaysConnected()
			mock.GetUserCountFunc = func() int { return count }
			svc := directory.NewService(mock)
			if svc.CountRecords() != directory.CountUnavailable {
				return false
			}
			svc.Initialize("descriptor")
			return svc.CountRecords() == count
		},
		gen.IntRange(0, 1_000_000),
	))

	properties.Property("initialize connects on every call", prop.ForAll(
		func(times int) bool {
			mock := directorytest.NewMockBackend().AlwaysConnected()
			svc := directory.NewService(mock)
			for i := 0; i < times; i++ {
				if !svc.Initialize("descriptor") || !svc.Initialized() {
					return false
				}
			}
			return mock.CallCount(directorytest.MethodConnect) == times
		},
		gen.IntRange(1, 5),
	))

	properties.TestingRun(t)
}
