// Package directorytest provides test doubles and a conformance suite for
// directory.Backend implementations.
package directorytest

import (
	"fmt"
	"sync"
	"testing"

	"github.com/nimburion/userdirectory/pkg/directory"
)

// Backend method names recorded by MockBackend.
const (
	MethodConnect         = "Connect"
	MethodDisconnect      = "Disconnect"
	MethodIsConnected     = "IsConnected"
	MethodInsertUser      = "InsertUser"
	MethodGetUserName     = "GetUserName"
	MethodGetUserAge      = "GetUserAge"
	MethodUpdateUser      = "UpdateUser"
	MethodDeleteUser      = "DeleteUser"
	MethodGetAllUserNames = "GetAllUserNames"
	MethodGetUserCount    = "GetUserCount"
	MethodExecuteQuery    = "ExecuteQuery"
	MethodGetLastError    = "GetLastError"
	MethodClearError      = "ClearError"
)

// Call is a single recorded invocation.
type Call struct {
	Method string
	Args   []any
}

// MockBackend is a scripted directory.Backend that records every call.
//
// Behaviour is supplied per method through the *Func fields. A method without
// a hook returns zero values, unless the mock was built with NewStrictMockBackend,
// in which case the call also fails the test.
type MockBackend struct {
	ConnectFunc         func(descriptor string) bool
	DisconnectFunc      func()
	IsConnectedFunc     func() bool
	InsertUserFunc      func(name string, age int) bool
	GetUserNameFunc     func(userID int) string
	GetUserAgeFunc      func(userID int) int
	UpdateUserFunc      func(userID int, name string, age int) bool
	DeleteUserFunc      func(userID int) bool
	GetAllUserNamesFunc func() []string
	GetUserCountFunc    func() int
	ExecuteQueryFunc    func(query string) ([]string, bool)
	GetLastErrorFunc    func() string
	ClearErrorFunc      func()

	mu     sync.Mutex
	calls  []Call
	strict testing.TB
}

var _ directory.Backend = (*MockBackend)(nil)

// NewMockBackend returns a permissive mock: unscripted calls return zero values.
func NewMockBackend() *MockBackend {
	return &MockBackend{}
}

// NewStrictMockBackend returns a mock that fails t on any unscripted call.
func NewStrictMockBackend(t testing.TB) *MockBackend {
	return &MockBackend{strict: t}
}

// AlwaysConnected scripts Connect and IsConnected to succeed on every call.
func (m *MockBackend) AlwaysConnected() *MockBackend {
	m.ConnectFunc = func(string) bool { return true }
	m.IsConnectedFunc = func() bool { return true }
	return m
}

// Calls returns a copy of every recorded call in order.
func (m *MockBackend) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallsTo returns the recorded calls of a single method in order.
func (m *MockBackend) CallsTo(method string) []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Call
	for _, c := range m.calls {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

// CallCount returns how many times method was invoked.
func (m *MockBackend) CallCount(method string) int {
	return len(m.CallsTo(method))
}

// Methods returns the sequence of invoked method names.
func (m *MockBackend) Methods() []string {
	calls := m.Calls()
	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = c.Method
	}
	return out
}

// Reset forgets recorded calls. Hooks are kept.
func (m *MockBackend) Reset() {
	m.mu.Lock()
	m.calls = nil
	m.mu.Unlock()
}

func (m *MockBackend) record(method string, scripted bool, args ...any) {
	m.mu.Lock()
	m.calls = append(m.calls, Call{Method: method, Args: args})
	m.mu.Unlock()
	if !scripted && m.strict != nil {
		m.strict.Helper()
		m.strict.Errorf("unexpected call to %s%s", method, formatArgs(args))
	}
}

func (m *MockBackend) Connect(descriptor string) bool {
	m.record(MethodConnect, m.ConnectFunc != nil, descriptor)
	if m.ConnectFunc == nil {
		return false
	}
	return m.ConnectFunc(descriptor)
}

func (m *MockBackend) Disconnect() {
	m.record(MethodDisconnect, m.DisconnectFunc != nil)
	if m.DisconnectFunc != nil {
		m.DisconnectFunc()
	}
}

func (m *MockBackend) IsConnected() bool {
	m.record(MethodIsConnected, m.IsConnectedFunc != nil)
	if m.IsConnectedFunc == nil {
		return false
	}
	return m.IsConnectedFunc()
}

func (m *MockBackend) InsertUser(name string, age int) bool {
	m.record(MethodInsertUser, m.InsertUserFunc != nil, name, age)
	if m.InsertUserFunc == nil {
		return false
	}
	return m.InsertUserFunc(name, age)
}

func (m *MockBackend) GetUserName(userID int) string {
	m.record(MethodGetUserName, m.GetUserNameFunc != nil, userID)
	if m.GetUserNameFunc == nil {
		return ""
	}
	return m.GetUserNameFunc(userID)
}

func (m *MockBackend) GetUserAge(userID int) int {
	m.record(MethodGetUserAge, m.GetUserAgeFunc != nil, userID)
	if m.GetUserAgeFunc == nil {
		return 0
	}
	return m.GetUserAgeFunc(userID)
}

func (m *MockBackend) UpdateUser(userID int, name string, age int) bool {
	m.record(MethodUpdateUser, m.UpdateUserFunc != nil, userID, name, age)
	if m.UpdateUserFunc == nil {
		return false
	}
	return m.UpdateUserFunc(userID, name, age)
}

func (m *MockBackend) DeleteUser(userID int) bool {
	m.record(MethodDeleteUser, m.DeleteUserFunc != nil, userID)
	if m.DeleteUserFunc == nil {
		return false
	}
	return m.DeleteUserFunc(userID)
}

func (m *MockBackend) GetAllUserNames() []string {
	m.record(MethodGetAllUserNames, m.GetAllUserNamesFunc != nil)
	if m.GetAllUserNamesFunc == nil {
		return nil
	}
	return m.GetAllUserNamesFunc()
}

func (m *MockBackend) GetUserCount() int {
	m.record(MethodGetUserCount, m.GetUserCountFunc != nil)
	if m.GetUserCountFunc == nil {
		return 0
	}
	return m.GetUserCountFunc()
}

func (m *MockBackend) ExecuteQuery(query string) ([]string, bool) {
	m.record(MethodExecuteQuery, m.ExecuteQueryFunc != nil, query)
	if m.ExecuteQueryFunc == nil {
		return nil, false
	}
	return m.ExecuteQueryFunc(query)
}

func (m *MockBackend) GetLastError() string {
	m.record(MethodGetLastError, m.GetLastErrorFunc != nil)
	if m.GetLastErrorFunc == nil {
		return ""
	}
	return m.GetLastErrorFunc()
}

func (m *MockBackend) ClearError() {
	m.record(MethodClearError, m.ClearErrorFunc != nil)
	if m.ClearErrorFunc != nil {
		m.ClearErrorFunc()
	}
}

// Sequence returns a function yielding values in order; once exhausted it
// keeps returning the last value.
func Sequence[T any](first T, rest ...T) func() T {
	values := append([]T{first}, rest...)
	var mu sync.Mutex
	next := 0
	return func() T {
		mu.Lock()
		defer mu.Unlock()
		v := values[next]
		if next < len(values)-1 {
			next++
		}
		return v
	}
}

func formatArgs(args []any) string {
	out := "("
	for i, a := range args {
		if i > 0 {
			out += ", "
		}
		out += fmt.Sprintf("%#v", a)
	}
	return out + ")"
}
