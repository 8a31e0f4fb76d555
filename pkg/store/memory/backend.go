// Package memory provides a process-local directory.Backend.
package memory

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/nimburion/userdirectory/pkg/directory"
	"github.com/nimburion/userdirectory/pkg/observability/logger"
)

// Scheme is the descriptor prefix accepted by Connect.
const Scheme = "memory://"

type user struct {
	name string
	age  int
}

// Backend keeps users in a map. Data survives Disconnect/Connect cycles of the
// same value and is lost with it.
type Backend struct {
	mu        sync.RWMutex
	users     map[int]user
	nextID    int
	connected bool
	name      string
	logger    logger.Logger
	errs      directory.ErrorState
}

var _ directory.Backend = (*Backend)(nil)

// New creates an empty, disconnected in-memory backend.
func New(log logger.Logger) *Backend {
	if log == nil {
		log = logger.NewNop()
	}
	return &Backend{
		users:  make(map[int]user),
		nextID: 1,
		logger: log,
	}
}

// Connect accepts descriptors of the form memory://<name>. The name is
// informational only.
func (b *Backend) Connect(descriptor string) bool {
	if !strings.HasPrefix(descriptor, Scheme) {
		b.errs.Record(fmt.Errorf("%w: %q must start with %s", directory.ErrInvalidDescriptor, descriptor, Scheme))
		b.logger.Warn("memory connect rejected", "descriptor", descriptor)
		return false
	}

	name := strings.TrimPrefix(descriptor, Scheme)
	b.mu.Lock()
	b.connected = true
	b.name = name
	b.mu.Unlock()

	b.errs.Clear()
	b.logger.Info("memory backend connected", "name", name)
	return true
}

func (b *Backend) Disconnect() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.connected {
		return
	}
	b.connected = false
	b.logger.Info("memory backend disconnected", "name", b.name)
}

func (b *Backend) IsConnected() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.connected
}

func (b *Backend) InsertUser(name string, age int) bool {
	if err := directory.ValidateUser(name, age); err != nil {
		b.errs.Record(err)
		return false
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.connected {
		b.errs.Record(directory.ErrNotConnected)
		return false
	}
	b.users[b.nextID] = user{name: name, age: age}
	b.nextID++
	return true
}

func (b *Backend) GetUserName(userID int) string {
	u, ok := b.lookup(userID)
	if !ok {
		return ""
	}
	return u.name
}

func (b *Backend) GetUserAge(userID int) int {
	u, ok := b.lookup(userID)
	if !ok {
		return directory.AgeNotFound
	}
	return u.age
}

func (b *Backend) lookup(userID int) (user, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.connected {
		b.errs.Record(directory.ErrNotConnected)
		return user{}, false
	}
	u, ok := b.users[userID]
	if !ok {
		b.errs.Record(fmt.Errorf("%w: id %d", directory.ErrUserNotFound, userID))
	}
	return u, ok
}

func (b *Backend) UpdateUser(userID int, name string, age int) bool {
	if err := directory.ValidateUser(name, age); err != nil {
		b.errs.Record(err)
		return false
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.connected {
		b.errs.Record(directory.ErrNotConnected)
		return false
	}
	if _, ok := b.users[userID]; !ok {
		b.errs.Record(fmt.Errorf("%w: id %d", directory.ErrUserNotFound, userID))
		return false
	}
	b.users[userID] = user{name: name, age: age}
	return true
}

func (b *Backend) DeleteUser(userID int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.connected {
		b.errs.Record(directory.ErrNotConnected)
		return false
	}
	if _, ok := b.users[userID]; !ok {
		b.errs.Record(fmt.Errorf("%w: id %d", directory.ErrUserNotFound, userID))
		return false
	}
	delete(b.users, userID)
	return true
}

// GetAllUserNames returns names ordered by id.
func (b *Backend) GetAllUserNames() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.connected {
		b.errs.Record(directory.ErrNotConnected)
		return nil
	}
	return b.namesLocked(func(user) bool { return true })
}

func (b *Backend) namesLocked(match func(user) bool) []string {
	ids := make([]int, 0, len(b.users))
	for id := range b.users {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	names := make([]string, 0, len(ids))
	for _, id := range ids {
		if u := b.users[id]; match(u) {
			names = append(names, u.name)
		}
	}
	return names
}

func (b *Backend) GetUserCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.connected {
		b.errs.Record(directory.ErrNotConnected)
		return 0
	}
	return len(b.users)
}

// ExecuteQuery understands three forms:
//
//	names          every name, by id
//	count          the number of users
//	name=<value>   names equal to value
func (b *Backend) ExecuteQuery(query string) ([]string, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.connected {
		b.errs.Record(directory.ErrNotConnected)
		return nil, false
	}

	q := strings.TrimSpace(query)
	switch {
	case q == "names":
		return b.namesLocked(func(user) bool { return true }), true
	case q == "count":
		return []string{strconv.Itoa(len(b.users))}, true
	case strings.HasPrefix(q, "name="):
		want := strings.TrimPrefix(q, "name=")
		return b.namesLocked(func(u user) bool { return u.name == want }), true
	default:
		b.errs.Record(fmt.Errorf("%w: %q", directory.ErrUnsupportedQuery, query))
		return nil, false
	}
}

func (b *Backend) GetLastError() string {
	return b.errs.Message()
}

func (b *Backend) ClearError() {
	b.errs.Clear()
}
