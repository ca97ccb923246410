package dynamo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog/log"
)

const (
	// Attribute names of the posts table key.
	PostsHashKey  = "id"
	PostsRangeKey = "created_at"
	// Attribute name of the settings table key.
	SettingsHashKey = "key"

	tableActiveTimeout = 2 * time.Minute
)

// tableSchema describes a table to provision.
type tableSchema struct {
	name     string
	hashKey  string
	rangeKey string
}

// EnsureTables creates any missing table. Existing tables are left untouched,
// so it is safe to run on every start.
func EnsureTables(ctx context.Context, api TableAPI, postsTable, settingsTable string) error {
	schemas := []tableSchema{
		{name: postsTable, hashKey: PostsHashKey, rangeKey: PostsRangeKey},
		{name: settingsTable, hashKey: SettingsHashKey},
	}

	for _, s := range schemas {
		if s.name == "" {
			continue
		}
		if err := ensureTable(ctx, api, s); err != nil {
			return err
		}
	}

	return nil
}

func ensureTable(ctx context.Context, api TableAPI, s tableSchema) error {
	_, err := api.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(s.name)})
	if err == nil {
		return nil // Already exists
	}

	var notFound *types.ResourceNotFoundException
	if !errors.As(err, &notFound) {
		return fmt.Errorf("failed to describe table %s: %w", s.name, err)
	}

	attrs := []types.AttributeDefinition{
		{AttributeName: aws.String(s.hashKey), AttributeType: types.ScalarAttributeTypeS},
	}
	keys := []types.KeySchemaElement{
		{AttributeName: aws.String(s.hashKey), KeyType: types.KeyTypeHash},
	}
	if s.rangeKey != "" {
		attrs = append(attrs, types.AttributeDefinition{AttributeName: aws.String(s.rangeKey), AttributeType: types.ScalarAttributeTypeS})
		keys = append(keys, types.KeySchemaElement{AttributeName: aws.String(s.rangeKey), KeyType: types.KeyTypeRange})
	}

	_, err = api.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName:            aws.String(s.name),
		AttributeDefinitions: attrs,
		KeySchema:            keys,
		BillingMode:          types.BillingModePayPerRequest,
	})
	if err != nil {
		return fmt.Errorf("failed to create table %s: %w", s.name, err)
	}

	waiter := dynamodb.NewTableExistsWaiter(api)
	if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(s.name)}, tableActiveTimeout); err != nil {
		return fmt.Errorf("failed waiting for table %s: %w", s.name, err)
	}

	log.Info().Str("table", s.name).Msg("Created table")
	return nil
}
