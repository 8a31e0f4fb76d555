// Package dynamodb stores users as DynamoDB items keyed by a numeric id.
//
// Item 0 of the table is reserved for the id counter, incremented with an
// atomic ADD. User items carry the attributes id, name and age.
package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/nimburion/userdirectory/pkg/directory"
	"github.com/nimburion/userdirectory/pkg/observability/logger"
)

const (
	defaultTable  = "users"
	counterID     = 0
	tableWaitTime = 2 * time.Minute
)

// API is the subset of the DynamoDB client used by Backend.
type API interface {
	ListTables(ctx context.Context, in *dynamodb.ListTablesInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ListTablesOutput, error)
	DescribeTable(ctx context.Context, in *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	CreateTable(ctx context.Context, in *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	ExecuteStatement(ctx context.Context, in *dynamodb.ExecuteStatementInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ExecuteStatementOutput, error)
}

// Config holds DynamoDB backend configuration.
type Config struct {
	Table            string
	Region           string
	AccessKeyID      string
	SecretAccessKey  string
	SessionToken     string
	OperationTimeout time.Duration
	// EnsureTable creates the table on Connect when it does not exist.
	EnsureTable bool
	// NewClient replaces dynamodb.NewFromConfig.
	NewClient func(cfg aws.Config, optFns ...func(*dynamodb.Options)) API
}

// Backend is a directory.Backend on top of AWS SDK v2.
type Backend struct {
	mu     sync.RWMutex
	client API
	config Config
	logger logger.Logger
	errs   directory.ErrorState
}

var _ directory.Backend = (*Backend)(nil)

// New creates a disconnected DynamoDB backend.
func New(cfg Config, log logger.Logger) *Backend {
	if log == nil {
		log = logger.NewNop()
	}
	if cfg.Table == "" {
		cfg.Table = defaultTable
	}
	if cfg.OperationTimeout <= 0 {
		cfg.OperationTimeout = 5 * time.Second
	}
	if cfg.NewClient == nil {
		cfg.NewClient = func(awsCfg aws.Config, optFns ...func(*dynamodb.Options)) API {
			return dynamodb.NewFromConfig(awsCfg, optFns...)
		}
	}
	return &Backend{
		config: cfg,
		logger: log.With("backend", "dynamodb", "table", cfg.Table),
	}
}

// Connect builds a client and verifies it with ListTables. descriptor is an
// endpoint override such as http://localhost:8000; empty uses the AWS
// default endpoint resolution.
func (b *Backend) Connect(descriptor string) bool {
	if err := b.connect(descriptor); err != nil {
		b.errs.Record(err)
		b.logger.Error("connect failed", "error", err)
		return false
	}
	b.errs.Clear()
	return true
}

func (b *Backend) connect(endpoint string) error {
	if b.config.Region == "" {
		return fmt.Errorf("%w: aws region is required", directory.ErrInvalidDescriptor)
	}

	loadOptions := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(b.config.Region)}
	if b.config.AccessKeyID != "" || b.config.SecretAccessKey != "" {
		loadOptions = append(loadOptions, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(b.config.AccessKeyID, b.config.SecretAccessKey, b.config.SessionToken),
		))
	}

	ctx, cancel := context.WithTimeout(context.Background(), b.config.OperationTimeout)
	defer cancel()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOptions...)
	if err != nil {
		return fmt.Errorf("failed to load aws config: %w", err)
	}

	var opts []func(*dynamodb.Options)
	if endpoint != "" {
		opts = append(opts, func(o *dynamodb.Options) {
			o.BaseEndpoint = aws.String(endpoint)
		})
	}
	client := b.config.NewClient(awsCfg, opts...)

	if _, err := client.ListTables(ctx, &dynamodb.ListTablesInput{Limit: aws.Int32(1)}); err != nil {
		return fmt.Errorf("dynamodb ping failed: %w", err)
	}
	if b.config.EnsureTable {
		if err := b.ensureTable(client); err != nil {
			return err
		}
	}

	b.mu.Lock()
	b.client = client
	b.mu.Unlock()

	b.logger.Info("DynamoDB backend connected", "region", b.config.Region, "endpoint", endpoint)
	return nil
}

func (b *Backend) ensureTable(client API) error {
	ctx, cancel := context.WithTimeout(context.Background(), tableWaitTime)
	defer cancel()

	_, err := client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(b.config.Table)})
	if err == nil {
		return nil
	}
	var notFound *types.ResourceNotFoundException
	if !errors.As(err, &notFound) {
		return fmt.Errorf("failed to describe table %s: %w", b.config.Table, err)
	}

	_, err = client.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName: aws.String(b.config.Table),
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String("id"), AttributeType: types.ScalarAttributeTypeN},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String("id"), KeyType: types.KeyTypeHash},
		},
		BillingMode: types.BillingModePayPerRequest,
	})
	if err != nil {
		return fmt.Errorf("failed to create table %s: %w", b.config.Table, err)
	}

	waiter := dynamodb.NewTableExistsWaiter(client)
	if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(b.config.Table)}, tableWaitTime); err != nil {
		return fmt.Errorf("table %s did not become active: %w", b.config.Table, err)
	}
	b.logger.Info("DynamoDB table created")
	return nil
}

// Disconnect drops the client. The SDK holds no connection state to close.
func (b *Backend) Disconnect() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.client == nil {
		return
	}
	b.client = nil
	b.logger.Info("DynamoDB backend disconnected")
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
	err := b.do(func(ctx context.Context, client API) error {
		out, err := client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
			TableName:                 aws.String(b.config.Table),
			Key:                       idKey(counterID),
			UpdateExpression:          aws.String("ADD seq :one"),
			ExpressionAttributeValues: map[string]types.AttributeValue{":one": number(1)},
			ReturnValues:              types.ReturnValueUpdatedNew,
		})
		if err != nil {
			return fmt.Errorf("failed to allocate user id: %w", err)
		}
		id, err := intAttribute(out.Attributes, "seq")
		if err != nil {
			return fmt.Errorf("failed to allocate user id: %w", err)
		}

		_, err = client.PutItem(ctx, &dynamodb.PutItemInput{
			TableName: aws.String(b.config.Table),
			Item: map[string]types.AttributeValue{
				"id":   number(id),
				"name": &types.AttributeValueMemberS{Value: name},
				"age":  number(age),
			},
			ConditionExpression: aws.String("attribute_not_exists(id)"),
		})
		if err != nil {
			return fmt.Errorf("failed to insert user %d: %w", id, err)
		}
		return nil
	})
	return err == nil
}

func (b *Backend) GetUserName(userID int) string {
	item, err := b.get(userID)
	if err != nil {
		return ""
	}
	return stringAttribute(item, "name")
}

func (b *Backend) GetUserAge(userID int) int {
	item, err := b.get(userID)
	if err != nil {
		return directory.AgeNotFound
	}
	age, err := intAttribute(item, "age")
	if err != nil {
		b.errs.Record(fmt.Errorf("user %d: %w", userID, err))
		return directory.AgeNotFound
	}
	return age
}

func (b *Backend) get(userID int) (map[string]types.AttributeValue, error) {
	var item map[string]types.AttributeValue
	err := b.do(func(ctx context.Context, client API) error {
		out, err := client.GetItem(ctx, &dynamodb.GetItemInput{
			TableName:      aws.String(b.config.Table),
			Key:            idKey(userID),
			ConsistentRead: aws.Bool(true),
		})
		if err != nil {
			return fmt.Errorf("failed to get user %d: %w", userID, err)
		}
		if stringAttribute(out.Item, "name") == "" {
			return fmt.Errorf("%w: id %d", directory.ErrUserNotFound, userID)
		}
		item = out.Item
		return nil
	})
	return item, err
}

func (b *Backend) UpdateUser(userID int, name string, age int) bool {
	if err := directory.ValidateUser(name, age); err != nil {
		b.errs.Record(err)
		return false
	}
	err := b.do(func(ctx context.Context, client API) error {
		_, err := client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
			TableName:                aws.String(b.config.Table),
			Key:                      idKey(userID),
			UpdateExpression:         aws.String("SET #n = :name, age = :age"),
			ConditionExpression:      aws.String("attribute_exists(#n)"),
			ExpressionAttributeNames: map[string]string{"#n": "name"},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":name": &types.AttributeValueMemberS{Value: name},
				":age":  number(age),
			},
		})
		return b.conditional(err, "update", userID)
	})
	return err == nil
}

func (b *Backend) DeleteUser(userID int) bool {
	err := b.do(func(ctx context.Context, client API) error {
		_, err := client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
			TableName:                aws.String(b.config.Table),
			Key:                      idKey(userID),
			ConditionExpression:      aws.String("attribute_exists(#n)"),
			ExpressionAttributeNames: map[string]string{"#n": "name"},
		})
		return b.conditional(err, "delete", userID)
	})
	return err == nil
}

// conditional maps a failed attribute_exists condition to ErrUserNotFound.
func (b *Backend) conditional(err error, op string, userID int) error {
	if err == nil {
		return nil
	}
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return fmt.Errorf("%w: id %d", directory.ErrUserNotFound, userID)
	}
	return fmt.Errorf("failed to %s user %d: %w", op, userID, err)
}

// GetAllUserNames scans the table and returns names ordered by id.
func (b *Backend) GetAllUserNames() []string {
	var names []string
	err := b.do(func(ctx context.Context, client API) error {
		type row struct {
			id   int
			name string
		}
		var rows []row
		paginator := dynamodb.NewScanPaginator(client, &dynamodb.ScanInput{
			TableName:                aws.String(b.config.Table),
			FilterExpression:         aws.String("attribute_exists(#n)"),
			ProjectionExpression:     aws.String("id, #n"),
			ExpressionAttributeNames: map[string]string{"#n": "name"},
			ConsistentRead:           aws.Bool(true),
		})
		for paginator.HasMorePages() {
			page, err := paginator.NextPage(ctx)
			if err != nil {
				return fmt.Errorf("failed to scan users: %w", err)
			}
			for _, item := range page.Items {
				id, err := intAttribute(item, "id")
				if err != nil {
					return err
				}
				rows = append(rows, row{id: id, name: stringAttribute(item, "name")})
			}
		}
		sort.Slice(rows, func(i, j int) bool { return rows[i].id < rows[j].id })
		names = make([]string, len(rows))
		for i, r := range rows {
			names[i] = r.name
		}
		return nil
	})
	if err != nil {
		return nil
	}
	return names
}

func (b *Backend) GetUserCount() int {
	var count int32
	err := b.do(func(ctx context.Context, client API) error {
		paginator := dynamodb.NewScanPaginator(client, &dynamodb.ScanInput{
			TableName:                aws.String(b.config.Table),
			FilterExpression:         aws.String("attribute_exists(#n)"),
			ExpressionAttributeNames: map[string]string{"#n": "name"},
			Select:                   types.SelectCount,
			ConsistentRead:           aws.Bool(true),
		})
		for paginator.HasMorePages() {
			page, err := paginator.NextPage(ctx)
			if err != nil {
				return fmt.Errorf("failed to count users: %w", err)
			}
			count += page.Count
		}
		return nil
	})
	if err != nil {
		return 0
	}
	return int(count)
}

// ExecuteQuery runs query as a PartiQL statement and returns the name
// attribute of every returned item that has one.
func (b *Backend) ExecuteQuery(query string) ([]string, bool) {
	names := []string{}
	err := b.do(func(ctx context.Context, client API) error {
		var next *string
		for {
			out, err := client.ExecuteStatement(ctx, &dynamodb.ExecuteStatementInput{
				Statement:      aws.String(query),
				NextToken:      next,
				ConsistentRead: aws.Bool(true),
			})
			if err != nil {
				return fmt.Errorf("failed to execute statement: %w", err)
			}
			for _, item := range out.Items {
				if name := stringAttribute(item, "name"); name != "" {
					names = append(names, name)
				}
			}
			if out.NextToken == nil {
				return nil
			}
			next = out.NextToken
		}
	})
	if err != nil {
		return nil, false
	}
	return names, true
}

func (b *Backend) GetLastError() string {
	return b.errs.Message()
}

func (b *Backend) ClearError() {
	b.errs.Clear()
}

func (b *Backend) do(fn func(ctx context.Context, client API) error) error {
	b.mu.RLock()
	client := b.client
	b.mu.RUnlock()
	if client == nil {
		b.errs.Record(directory.ErrNotConnected)
		return directory.ErrNotConnected
	}

	ctx, cancel := b.withOperationTimeout(context.Background())
	defer cancel()

	if err := fn(ctx, client); err != nil {
		if IsThrottlingError(err) {
			b.logger.Warn("DynamoDB request throttled", "error", err)
		}
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

// IsThrottlingError reports whether err is a provisioned throughput rejection.
func IsThrottlingError(err error) bool {
	if err == nil {
		return false
	}
	var pte *types.ProvisionedThroughputExceededException
	return errors.As(err, &pte)
}

func idKey(id int) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{"id": number(id)}
}

func number(n int) types.AttributeValue {
	return &types.AttributeValueMemberN{Value: strconv.Itoa(n)}
}

func stringAttribute(item map[string]types.AttributeValue, name string) string {
	if s, ok := item[name].(*types.AttributeValueMemberS); ok {
		return s.Value
	}
	return ""
}

func intAttribute(item map[string]types.AttributeValue, name string) (int, error) {
	n, ok := item[name].(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("attribute %q is missing or not a number", name)
	}
	v, err := strconv.Atoi(n.Value)
	if err != nil {
		return 0, fmt.Errorf("attribute %q: %w", name, err)
	}
	return v, nil
}
