// Package mongodb stores users as documents {_id, name, age}.
// Ids come from a counters collection incremented with $inc.
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/x/mongo/driver/connstring"

	"github.com/nimburion/userdirectory/pkg/directory"
	"github.com/nimburion/userdirectory/pkg/observability/logger"
)

const (
	defaultDatabase   = "userdirectory"
	defaultCollection = "users"
	countersName      = "counters"
	userSequence      = "user_id"
)

// Config holds MongoDB backend configuration. Database falls back to the
// database named in the connection URI, then to "userdirectory".
type Config struct {
	Database         string
	Collection       string
	ConnectTimeout   time.Duration
	OperationTimeout time.Duration
}

type userDocument struct {
	ID   int    `bson:"_id"`
	Name string `bson:"name"`
	Age  int    `bson:"age"`
}

type counterDocument struct {
	Seq int `bson:"seq"`
}

// Backend is a directory.Backend on top of the official MongoDB driver.
type Backend struct {
	mu       sync.RWMutex
	client   *mongo.Client
	database string
	config   Config
	logger   logger.Logger
	errs     directory.ErrorState
}

var _ directory.Backend = (*Backend)(nil)

// New creates a disconnected MongoDB backend.
func New(cfg Config, log logger.Logger) *Backend {
	if log == nil {
		log = logger.NewNop()
	}
	if cfg.Collection == "" {
		cfg.Collection = defaultCollection
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	if cfg.OperationTimeout <= 0 {
		cfg.OperationTimeout = 5 * time.Second
	}
	return &Backend{
		config: cfg,
		logger: log.With("backend", "mongodb"),
	}
}

// Connect dials the mongodb:// URI in descriptor and pings the primary.
func (b *Backend) Connect(descriptor string) bool {
	if err := b.connect(descriptor); err != nil {
		b.errs.Record(err)
		b.logger.Error("connect failed", "error", err)
		return false
	}
	b.errs.Clear()
	return true
}

func (b *Backend) connect(descriptor string) error {
	cs, err := connstring.ParseAndValidate(descriptor)
	if err != nil {
		return fmt.Errorf("%w: %v", directory.ErrInvalidDescriptor, err)
	}
	database := b.config.Database
	if database == "" {
		database = cs.Database
	}
	if database == "" {
		database = defaultDatabase
	}

	b.Disconnect()

	ctx, cancel := context.WithTimeout(context.Background(), b.config.ConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().
		ApplyURI(descriptor).
		SetServerSelectionTimeout(b.config.ConnectTimeout))
	if err != nil {
		return fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return fmt.Errorf("failed to ping mongodb: %w", err)
	}

	b.mu.Lock()
	b.client = client
	b.database = database
	b.mu.Unlock()

	b.logger.Info("MongoDB connection established", "database", database, "collection", b.config.Collection)
	return nil
}

// Disconnect closes the client. It is a no-op when not connected.
func (b *Backend) Disconnect() {
	b.mu.Lock()
	client := b.client
	b.client = nil
	b.mu.Unlock()

	if client == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Disconnect(ctx); err != nil {
		b.logger.Error("failed to close mongodb connection", "error", err)
		return
	}
	b.logger.Info("MongoDB connection closed")
}

func (b *Backend) IsConnected() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.client != nil
}

func (b *Backend) InsertUser(name string, age int) bool {
	if err := directory.ValidateUser(name, age); err != nil {
		b.errs.Record(err)
		return false
	}
	err := b.do(func(ctx context.Context, db *mongo.Database) error {
		id, err := nextID(ctx, db.Collection(countersName))
		if err != nil {
			return err
		}
		if _, err := db.Collection(b.config.Collection).InsertOne(ctx, userDocument{ID: id, Name: name, Age: age}); err != nil {
			return fmt.Errorf("failed to insert user %d: %w", id, err)
		}
		return nil
	})
	return err == nil
}

func nextID(ctx context.Context, counters *mongo.Collection) (int, error) {
	var counter counterDocument
	err := counters.FindOneAndUpdate(ctx,
		bson.M{"_id": userSequence},
		bson.M{"$inc": bson.M{"seq": 1}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&counter)
	if err != nil {
		return 0, fmt.Errorf("failed to allocate user id: %w", err)
	}
	return counter.Seq, nil
}

func (b *Backend) GetUserName(userID int) string {
	doc, err := b.find(userID)
	if err != nil {
		return ""
	}
	return doc.Name
}

func (b *Backend) GetUserAge(userID int) int {
	doc, err := b.find(userID)
	if err != nil {
		return directory.AgeNotFound
	}
	return doc.Age
}

func (b *Backend) find(userID int) (userDocument, error) {
	var doc userDocument
	err := b.do(func(ctx context.Context, db *mongo.Database) error {
		err := db.Collection(b.config.Collection).FindOne(ctx, bson.M{"_id": userID}).Decode(&doc)
		if errors.Is(err, mongo.ErrNoDocuments) {
			return fmt.Errorf("%w: id %d", directory.ErrUserNotFound, userID)
		}
		if err != nil {
			return fmt.Errorf("failed to get user %d: %w", userID, err)
		}
		return nil
	})
	return doc, err
}

func (b *Backend) UpdateUser(userID int, name string, age int) bool {
	if err := directory.ValidateUser(name, age); err != nil {
		b.errs.Record(err)
		return false
	}
	err := b.do(func(ctx context.Context, db *mongo.Database) error {
		res, err := db.Collection(b.config.Collection).UpdateOne(ctx,
			bson.M{"_id": userID},
			bson.M{"$set": bson.M{"name": name, "age": age}},
		)
		if err != nil {
			return fmt.Errorf("failed to update user %d: %w", userID, err)
		}
		if res.MatchedCount == 0 {
			return fmt.Errorf("%w: id %d", directory.ErrUserNotFound, userID)
		}
		return nil
	})
	return err == nil
}

func (b *Backend) DeleteUser(userID int) bool {
	err := b.do(func(ctx context.Context, db *mongo.Database) error {
		res, err := db.Collection(b.config.Collection).DeleteOne(ctx, bson.M{"_id": userID})
		if err != nil {
			return fmt.Errorf("failed to delete user %d: %w", userID, err)
		}
		if res.DeletedCount == 0 {
			return fmt.Errorf("%w: id %d", directory.ErrUserNotFound, userID)
		}
		return nil
	})
	return err == nil
}

// GetAllUserNames returns names ordered by id.
func (b *Backend) GetAllUserNames() []string {
	names, err := b.names(bson.D{})
	if err != nil {
		return nil
	}
	return names
}

func (b *Backend) names(filter any) ([]string, error) {
	var names []string
	err := b.do(func(ctx context.Context, db *mongo.Database) error {
		cursor, err := db.Collection(b.config.Collection).Find(ctx, filter,
			options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}).SetProjection(bson.M{"name": 1}))
		if err != nil {
			return fmt.Errorf("failed to find users: %w", err)
		}
		var docs []userDocument
		if err := cursor.All(ctx, &docs); err != nil {
			return fmt.Errorf("failed to decode users: %w", err)
		}
		names = make([]string, len(docs))
		for i, doc := range docs {
			names[i] = doc.Name
		}
		return nil
	})
	return names, err
}

func (b *Backend) GetUserCount() int {
	var count int64
	err := b.do(func(ctx context.Context, db *mongo.Database) error {
		n, err := db.Collection(b.config.Collection).CountDocuments(ctx, bson.D{})
		if err != nil {
			return fmt.Errorf("failed to count users: %w", err)
		}
		count = n
		return nil
	})
	if err != nil {
		return 0
	}
	return int(count)
}

// ExecuteQuery parses query as an extended JSON filter document and returns
// the names of matching users ordered by id.
func (b *Backend) ExecuteQuery(query string) ([]string, bool) {
	filter, err := ParseFilter(query)
	if err != nil {
		b.errs.Record(err)
		return nil, false
	}
	names, err := b.names(filter)
	if err != nil {
		return nil, false
	}
	return names, true
}

// ParseFilter decodes a relaxed extended JSON filter such as {"age": {"$gte": 18}}.
func ParseFilter(query string) (bson.D, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: empty filter", directory.ErrUnsupportedQuery)
	}
	var filter bson.D
	if err := bson.UnmarshalExtJSON([]byte(query), false, &filter); err != nil {
		return nil, fmt.Errorf("%w: %v", directory.ErrUnsupportedQuery, err)
	}
	return filter, nil
}

func (b *Backend) GetLastError() string {
	return b.errs.Message()
}

func (b *Backend) ClearError() {
	b.errs.Clear()
}

func (b *Backend) do(fn func(ctx context.Context, db *mongo.Database) error) error {
	b.mu.RLock()
	client, database := b.client, b.database
	b.mu.RUnlock()
	if client == nil {
		b.errs.Record(directory.ErrNotConnected)
		return directory.ErrNotConnected
	}

	ctx, cancel := b.withOperationTimeout(context.Background())
	defer cancel()

	if err := fn(ctx, client.Database(database)); err != nil {
		b.errs.Record(err)
		return err
	}
	return nil
}

func (b *Backend) withOperationTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if b.config.OperationTimeout <= 0 {
		return ctx, func() {}
	}
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, b.config.OperationTimeout)
}
