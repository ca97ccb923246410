package dynamo

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/dfryer1193/goblog/shared/config"
)

// API is the subset of the DynamoDB client used by the repositories.
// *dynamodb.Client satisfies it; tests use dynamotest.Store.
type API interface {
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// TableAPI is the subset of the DynamoDB client used to provision tables.
type TableAPI interface {
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
}

var (
	_ API      = (*dynamodb.Client)(nil)
	_ TableAPI = (*dynamodb.Client)(nil)
)

// Client is a ready-to-use handle to the backing store.
// It is created once at startup and is safe for concurrent use.
type Client struct {
	db            *dynamodb.Client
	postsTable    string
	settingsTable string
}

// NewClient creates a DynamoDB client from cfg using static credentials.
func NewClient(ctx context.Context, cfg *config.Store) (*Client, error) {
	if cfg == nil {
		return nil, &config.ConfigurationError{Err: fmt.Errorf("store configuration cannot be nil")}
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		),
	)
	if err != nil {
		return nil, &config.ConfigurationError{Err: fmt.Errorf("failed to load aws config: %w", err)}
	}

	db := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	return &Client{
		db:            db,
		postsTable:    cfg.PostsTable,
		settingsTable: cfg.SettingsTable,
	}, nil
}

// API returns the underlying client for use by repositories.
func (c *Client) API() API {
	return c.db
}

// PostsTable returns the name of the posts table.
func (c *Client) PostsTable() string {
	return c.postsTable
}

// SettingsTable returns the name of the settings table.
func (c *Client) SettingsTable() string {
	return c.settingsTable
}

// EnsureTables creates the posts and settings tables if they are missing.
func (c *Client) EnsureTables(ctx context.Context) error {
	return EnsureTables(ctx, c.db, c.postsTable, c.settingsTable)
}
