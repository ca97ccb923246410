// Package dynamotest provides an in-memory stand-in for DynamoDB.
//
// Store keeps items in insertion order and pages Scan and Query results
// with a fixed page size, so callers see continuation tokens the same way
// they would against a real table. Filters apply to each page after it is
// read, as DynamoDB does. Key condition, filter, condition and projection
// expressions are evaluated for the subset the expression package builds:
// comparisons, AND, OR, NOT, attribute_exists, attribute_not_exists,
// begins_with and contains. Update expressions support SET actions with
// if_not_exists and + or -. Anything else fails with a ValidationException.
package dynamotest

import (
	"context"
	"maps"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/dfryer1193/goblog/shared/dynamo"
)

var (
	_ dynamo.API      = (*Store)(nil)
	_ dynamo.TableAPI = (*Store)(nil)
)

// Operation names used with Fail and Calls.
const (
	OpScan          = "Scan"
	OpQuery         = "Query"
	OpGetItem       = "GetItem"
	OpPutItem       = "PutItem"
	OpUpdateItem    = "UpdateItem"
	OpDeleteItem    = "DeleteItem"
	OpDescribeTable = "DescribeTable"
	OpCreateTable   = "CreateTable"
)

type Item = map[string]types.AttributeValue

type table struct {
	hashKey  string
	rangeKey string
	items    []Item
}

type failure struct {
	after int // calls allowed to succeed first
	err   error
}

// Store is an in-memory DynamoDB. It is safe for concurrent use.
type Store struct {
	mu       sync.Mutex
	pageSize int
	tables   map[string]*table
	calls    map[string]int
	failures map[string]failure
	scans    []*dynamodb.ScanInput
}

// NewStore creates an empty store that returns at most pageSize items per
// Scan or Query page. A pageSize below 1 means unbounded pages.
func NewStore(pageSize int) *Store {
	return &Store{
		pageSize: pageSize,
		tables:   make(map[string]*table),
		calls:    make(map[string]int),
		failures: make(map[string]failure),
	}
}

// AddTable registers a table with the given key schema. rangeKey may be empty.
func (s *Store) AddTable(name, hashKey, rangeKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tables[name]; !ok {
		s.tables[name] = &table{hashKey: hashKey, rangeKey: rangeKey}
	}
}

// Fail makes every call to op return err.
func (s *Store) Fail(op string, err error) {
	s.FailAfter(op, 0, err)
}

// FailAfter lets n calls to op succeed, then makes the following calls return err.
func (s *Store) FailAfter(op string, n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op] = failure{after: s.calls[op] + n, err: err}
}

// Reset clears injected failures.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = make(map[string]failure)
}

// Calls returns how many times op has been invoked.
func (s *Store) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// ScanInputs returns the inputs of every Scan call so far.
func (s *Store) ScanInputs() []*dynamodb.ScanInput {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*dynamodb.ScanInput(nil), s.scans...)
}

// Items returns a copy of every item in the table, in insertion order.
func (s *Store) Items(tableName string) []Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tables[tableName]
	if !ok {
		return nil
	}
	out := make([]Item, 0, len(t.items))
	for _, it := range t.items {
		out = append(out, maps.Clone(it))
	}
	return out
}

// record counts the call and returns the injected failure, if any. Caller holds mu.
func (s *Store) record(op string) error {
	s.calls[op]++
	if f, ok := s.failures[op]; ok && s.calls[op] > f.after {
		return f.err
	}
	return nil
}

func (s *Store) table(name *string) (*table, error) {
	t, ok := s.tables[aws.ToString(name)]
	if !ok {
		return nil, &types.ResourceNotFoundException{Message: aws.String("table not found: " + aws.ToString(name))}
	}
	return t, nil
}

func (s *Store) Scan(_ context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record(OpScan); err != nil {
		return nil, err
	}
	s.scans = append(s.scans, in)

	t, err := s.table(in.TableName)
	if err != nil {
		return nil, err
	}

	page, last := t.page(t.items, in.ExclusiveStartKey, s.pageSize)
	items, err := filterAndProject(page, aws.ToString(in.FilterExpression), aws.ToString(in.ProjectionExpression), in.ExpressionAttributeNames, in.ExpressionAttributeValues)
	if err != nil {
		return nil, err
	}
	return &dynamodb.ScanOutput{
		Items:            items,
		Count:            int32(len(items)),
		ScannedCount:     int32(len(page)),
		LastEvaluatedKey: last,
	}, nil
}

func (s *Store) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record(OpQuery); err != nil {
		return nil, err
	}

	t, err := s.table(in.TableName)
	if err != nil {
		return nil, err
	}

	keyCond := aws.ToString(in.KeyConditionExpression)
	if keyCond == "" {
		return nil, validationError("Either the KeyConditions or KeyConditionExpression parameter must be specified in the request")
	}

	var matched []Item
	for _, it := range t.items {
		ok, err := evalCondition(keyCond, t.keyOf(it), in.ExpressionAttributeNames, in.ExpressionAttributeValues)
		if err != nil {
			return nil, err
		}
		if ok {
			matched = append(matched, it)
		}
	}

	page, last := t.page(matched, in.ExclusiveStartKey, s.pageSize)
	items, err := filterAndProject(page, aws.ToString(in.FilterExpression), aws.ToString(in.ProjectionExpression), in.ExpressionAttributeNames, in.ExpressionAttributeValues)
	if err != nil {
		return nil, err
	}
	return &dynamodb.QueryOutput{
		Items:            items,
		Count:            int32(len(items)),
		ScannedCount:     int32(len(page)),
		LastEvaluatedKey: last,
	}, nil
}

func (s *Store) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record(OpGetItem); err != nil {
		return nil, err
	}

	t, err := s.table(in.TableName)
	if err != nil {
		return nil, err
	}

	i := t.find(in.Key)
	if i < 0 {
		return &dynamodb.GetItemOutput{}, nil
	}
	item, err := project(maps.Clone(t.items[i]), aws.ToString(in.ProjectionExpression), in.ExpressionAttributeNames)
	if err != nil {
		return nil, err
	}
	return &dynamodb.GetItemOutput{Item: item}, nil
}

func (s *Store) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record(OpPutItem); err != nil {
		return nil, err
	}

	t, err := s.table(in.TableName)
	if err != nil {
		return nil, err
	}

	item := maps.Clone(in.Item)
	i := t.find(t.keyOf(item))
	if err := t.checkCondition(i, aws.ToString(in.ConditionExpression), in.ExpressionAttributeNames, in.ExpressionAttributeValues); err != nil {
		return nil, err
	}

	if i >= 0 {
		t.items[i] = item
	} else {
		t.items = append(t.items, item)
	}
	return &dynamodb.PutItemOutput{}, nil
}

func (s *Store) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record(OpUpdateItem); err != nil {
		return nil, err
	}

	t, err := s.table(in.TableName)
	if err != nil {
		return nil, err
	}

	i := t.find(in.Key)
	if err := t.checkCondition(i, aws.ToString(in.ConditionExpression), in.ExpressionAttributeNames, in.ExpressionAttributeValues); err != nil {
		return nil, err
	}

	var item Item
	if i >= 0 {
		item = maps.Clone(t.items[i])
	} else {
		item = maps.Clone(in.Key)
	}

	if err := applyUpdate(item, aws.ToString(in.UpdateExpression), in.ExpressionAttributeNames, in.ExpressionAttributeValues); err != nil {
		return nil, err
	}

	if i >= 0 {
		t.items[i] = item
	} else {
		t.items = append(t.items, item)
	}

	out := &dynamodb.UpdateItemOutput{}
	if in.ReturnValues == types.ReturnValueAllNew {
		out.Attributes = maps.Clone(item)
	}
	return out, nil
}

func (s *Store) DeleteItem(_ context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record(OpDeleteItem); err != nil {
		return nil, err
	}

	t, err := s.table(in.TableName)
	if err != nil {
		return nil, err
	}

	i := t.find(in.Key)
	if err := t.checkCondition(i, aws.ToString(in.ConditionExpression), in.ExpressionAttributeNames, in.ExpressionAttributeValues); err != nil {
		return nil, err
	}
	if i >= 0 {
		t.items = append(t.items[:i], t.items[i+1:]...)
	}
	return &dynamodb.DeleteItemOutput{}, nil
}

func (s *Store) DescribeTable(_ context.Context, in *dynamodb.DescribeTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record(OpDescribeTable); err != nil {
		return nil, err
	}

	if _, err := s.table(in.TableName); err != nil {
		return nil, err
	}
	return &dynamodb.DescribeTableOutput{
		Table: &types.TableDescription{
			TableName:   in.TableName,
			TableStatus: types.TableStatusActive,
		},
	}, nil
}

func (s *Store) CreateTable(_ context.Context, in *dynamodb.CreateTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record(OpCreateTable); err != nil {
		return nil, err
	}

	name := aws.ToString(in.TableName)
	if _, ok := s.tables[name]; ok {
		return nil, &types.ResourceInUseException{Message: aws.String("table already exists: " + name)}
	}

	t := &table{}
	for _, k := range in.KeySchema {
		switch k.KeyType {
		case types.KeyTypeHash:
			t.hashKey = aws.ToString(k.AttributeName)
		case types.KeyTypeRange:
			t.rangeKey = aws.ToString(k.AttributeName)
		}
	}
	s.tables[name] = t

	return &dynamodb.CreateTableOutput{
		TableDescription: &types.TableDescription{
			TableName:   in.TableName,
			TableStatus: types.TableStatusActive,
		},
	}, nil
}

func (t *table) keyOf(item Item) Item {
	key := Item{t.hashKey: item[t.hashKey]}
	if t.rangeKey != "" {
		key[t.rangeKey] = item[t.rangeKey]
	}
	return key
}

func (t *table) find(key Item) int {
	for i, it := range t.items {
		if !equal(it[t.hashKey], key[t.hashKey]) {
			continue
		}
		if t.rangeKey != "" && !equal(it[t.rangeKey], key[t.rangeKey]) {
			continue
		}
		return i
	}
	return -1
}

// page returns up to size items of src following the item keyed by start,
// and the key of the last returned item when more remain.
func (t *table) page(src []Item, start Item, size int) ([]Item, Item) {
	from := 0
	if start != nil {
		from = len(src)
		for i, it := range src {
			if equal(it[t.hashKey], start[t.hashKey]) && (t.rangeKey == "" || equal(it[t.rangeKey], start[t.rangeKey])) {
				from = i + 1
				break
			}
		}
	}

	to := len(src)
	if size > 0 && from+size < to {
		to = from + size
	}

	items := make([]Item, 0, to-from)
	for _, it := range src[from:to] {
		items = append(items, maps.Clone(it))
	}

	if to < len(src) {
		return items, t.keyOf(src[to-1])
	}
	return items, nil
}

// checkCondition evaluates a condition expression against the item at
// index i, or against an empty item when i is negative.
func (t *table) checkCondition(i int, expr string, names map[string]string, values map[string]types.AttributeValue) error {
	current := Item{}
	if i >= 0 {
		current = t.items[i]
	}
	ok, err := evalCondition(expr, current, names, values)
	if err != nil {
		return err
	}
	if !ok {
		return &types.ConditionalCheckFailedException{Message: aws.String("The conditional request failed")}
	}
	return nil
}

func filterAndProject(items []Item, filter, projection string, names map[string]string, values map[string]types.AttributeValue) ([]Item, error) {
	out := make([]Item, 0, len(items))
	for _, it := range items {
		ok, err := evalCondition(filter, it, names, values)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		projected, err := project(it, projection, names)
		if err != nil {
			return nil, err
		}
		out = append(out, projected)
	}
	return out, nil
}

func equal(a, b types.AttributeValue) bool {
	switch av := a.(type) {
	case *types.AttributeValueMemberS:
		bv, ok := b.(*types.AttributeValueMemberS)
		return ok && av.Value == bv.Value
	case *types.AttributeValueMemberN:
		bv, ok := b.(*types.AttributeValueMemberN)
		return ok && av.Value == bv.Value
	case *types.AttributeValueMemberBOOL:
		bv, ok := b.(*types.AttributeValueMemberBOOL)
		return ok && av.Value == bv.Value
	}
	return false
}
