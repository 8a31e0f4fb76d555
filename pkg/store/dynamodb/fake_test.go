package dynamodb

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// fakeAPI is an in-memory stand-in for the DynamoDB operations Backend issues.
type fakeAPI struct {
	mu          sync.Mutex
	items       map[int]map[string]types.AttributeValue
	tableExists bool
	created     int
	pageSize    int
	listErr     error
	failNext    error
	statements  []string
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{items: make(map[int]map[string]types.AttributeValue), tableExists: true, pageSize: 2}
}

func (f *fakeAPI) takeFailure() error {
	err := f.failNext
	f.failNext = nil
	return err
}

func (f *fakeAPI) ListTables(context.Context, *dynamodb.ListTablesInput, ...func(*dynamodb.Options)) (*dynamodb.ListTablesOutput, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return &dynamodb.ListTablesOutput{}, nil
}

func (f *fakeAPI) DescribeTable(_ context.Context, in *dynamodb.DescribeTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.tableExists {
		return nil, &types.ResourceNotFoundException{Message: aws.String("table not found")}
	}
	return &dynamodb.DescribeTableOutput{Table: &types.TableDescription{
		TableName:   in.TableName,
		TableStatus: types.TableStatusActive,
	}}, nil
}

func (f *fakeAPI) CreateTable(context.Context, *dynamodb.CreateTableInput, ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tableExists = true
	f.created++
	return &dynamodb.CreateTableOutput{}, nil
}

func (f *fakeAPI) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeFailure(); err != nil {
		return nil, err
	}
	id := keyID(in.Item)
	if _, exists := f.items[id]; exists {
		return nil, &types.ConditionalCheckFailedException{}
	}
	f.items[id] = copyItem(in.Item)
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeAPI) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeFailure(); err != nil {
		return nil, err
	}
	item, ok := f.items[keyID(in.Key)]
	if !ok {
		return &dynamodb.GetItemOutput{}, nil
	}
	return &dynamodb.GetItemOutput{Item: copyItem(item)}, nil
}

func (f *fakeAPI) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeFailure(); err != nil {
		return nil, err
	}
	id := keyID(in.Key)

	if aws.ToString(in.UpdateExpression) == "ADD seq :one" {
		item, ok := f.items[id]
		if !ok {
			item = map[string]types.AttributeValue{"id": number(id), "seq": number(0)}
			f.items[id] = item
		}
		seq, _ := intAttribute(item, "seq")
		item["seq"] = number(seq + 1)
		return &dynamodb.UpdateItemOutput{Attributes: map[string]types.AttributeValue{"seq": number(seq + 1)}}, nil
	}

	item, ok := f.items[id]
	if !ok || stringAttribute(item, "name") == "" {
		return nil, &types.ConditionalCheckFailedException{}
	}
	item["name"] = in.ExpressionAttributeValues[":name"]
	item["age"] = in.ExpressionAttributeValues[":age"]
	return &dynamodb.UpdateItemOutput{}, nil
}

func (f *fakeAPI) DeleteItem(_ context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeFailure(); err != nil {
		return nil, err
	}
	id := keyID(in.Key)
	item, ok := f.items[id]
	if !ok || stringAttribute(item, "name") == "" {
		return nil, &types.ConditionalCheckFailedException{}
	}
	delete(f.items, id)
	return &dynamodb.DeleteItemOutput{}, nil
}

// Scan returns named items in descending id order, pageSize at a time.
func (f *fakeAPI) Scan(_ context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeFailure(); err != nil {
		return nil, err
	}

	named := f.namedLocked()
	sort.Slice(named, func(i, j int) bool { return keyID(named[i]) > keyID(named[j]) })

	start := 0
	if in.ExclusiveStartKey != nil {
		start = keyID(in.ExclusiveStartKey)
	}
	end := len(named)
	if f.pageSize > 0 && start+f.pageSize < end {
		end = start + f.pageSize
	}
	page := named[start:end]

	out := &dynamodb.ScanOutput{Count: int32(len(page))}
	if in.Select != types.SelectCount {
		out.Items = page
	}
	if end < len(named) {
		out.LastEvaluatedKey = map[string]types.AttributeValue{"id": number(end)}
	}
	return out, nil
}

func (f *fakeAPI) ExecuteStatement(_ context.Context, in *dynamodb.ExecuteStatementInput, _ ...func(*dynamodb.Options)) (*dynamodb.ExecuteStatementOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statements = append(f.statements, aws.ToString(in.Statement))
	if aws.ToString(in.Statement) != `SELECT * FROM "users"` {
		return nil, errors.New("ValidationException: Statement wasn't well formed")
	}

	named := f.namedLocked()
	sort.Slice(named, func(i, j int) bool { return keyID(named[i]) < keyID(named[j]) })
	if in.NextToken == nil && len(named) > 1 {
		return &dynamodb.ExecuteStatementOutput{Items: named[:1], NextToken: aws.String("page-2")}, nil
	}
	if in.NextToken != nil {
		return &dynamodb.ExecuteStatementOutput{Items: named[1:]}, nil
	}
	return &dynamodb.ExecuteStatementOutput{Items: named}, nil
}

func (f *fakeAPI) namedLocked() []map[string]types.AttributeValue {
	var named []map[string]types.AttributeValue
	for _, item := range f.items {
		if stringAttribute(item, "name") != "" {
			named = append(named, copyItem(item))
		}
	}
	return named
}

func keyID(item map[string]types.AttributeValue) int {
	n, _ := item["id"].(*types.AttributeValueMemberN)
	if n == nil {
		return -1
	}
	id, _ := strconv.Atoi(n.Value)
	return id
}

func copyItem(item map[string]types.AttributeValue) map[string]types.AttributeValue {
	out := make(map[string]types.AttributeValue, len(item))
	for k, v := range item {
		out[k] = v
	}
	return out
}
