// Package directory implements the user directory façade and the storage
// backend contract it delegates to.
package directory

// AgeNotFound is returned by Backend.GetUserAge when no user has the requested id.
const AgeNotFound = -1

// CountUnavailable is returned by Service.CountRecords when the gating check fails.
// It is distinct from a legitimate zero count.
const CountUnavailable = -1

// Backend is the storage capability set consumed by Service.
//
// Implementations report failures through return values and the last-error
// slot, never by panicking. IsConnected must be callable before Connect.
type Backend interface {
	// Connect opens the backend using an implementation-specific descriptor
	// (DSN, URL or endpoint).
	Connect(descriptor string) bool
	// Disconnect releases the backend connection. It is safe to call when not connected.
	Disconnect()
	// IsConnected reports whether the backend currently holds a live connection.
	IsConnected() bool

	// InsertUser stores a new user record. Ids are assigned by the backend.
	InsertUser(name string, age int) bool
	// GetUserName returns the user's name, or "" when the user does not exist.
	GetUserName(userID int) string
	// GetUserAge returns the user's age, or AgeNotFound when the user does not exist.
	GetUserAge(userID int) int
	// UpdateUser replaces name and age of an existing user.
	UpdateUser(userID int, name string, age int) bool
	// DeleteUser removes a user record.
	DeleteUser(userID int) bool

	// GetAllUserNames returns the names of every stored user ordered by id.
	GetAllUserNames() []string
	// GetUserCount returns the number of stored users.
	GetUserCount() int
	// ExecuteQuery runs a backend-native query and returns one string per result row.
	// The boolean reports success independently of the number of rows.
	ExecuteQuery(query string) ([]string, bool)

	// GetLastError returns the message of the most recent failure, or "".
	GetLastError() string
	// ClearError resets the last-error slot.
	ClearError()
}
