package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/dfryer1193/goblog/blog/domain"
	"github.com/dfryer1193/goblog/shared/dynamo"
	"github.com/rs/zerolog/log"
)

var _ domain.SettingsRepository = (*DynamoSettingsRepository)(nil)

const siteSettingsKey = "site"

// DynamoSettingsRepository stores site settings as a single item in a key/value table.
type DynamoSettingsRepository struct {
	db    dynamo.API
	table string
}

// NewSettingsRepository creates a DynamoSettingsRepository for the given table.
func NewSettingsRepository(db dynamo.API, table string) *DynamoSettingsRepository {
	return &DynamoSettingsRepository{
		db:    db,
		table: table,
	}
}

// GetSettings returns the stored settings, or the defaults when nothing is stored.
func (r *DynamoSettingsRepository) GetSettings(ctx context.Context) (*domain.Settings, error) {
	out, err := r.db.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.table),
		Key: map[string]types.AttributeValue{
			dynamo.SettingsHashKey: stringValue(siteSettingsKey),
		},
	})
	if err != nil {
		log.Error().Err(err).Str("table", r.table).Msg("Failed to read settings")
		return nil, &domain.InternalError{Op: "get settings", Err: err}
	}

	if len(out.Item) == 0 {
		return domain.DefaultSettings(), nil
	}

	var row settingsItem
	if err := attributevalue.UnmarshalMap(out.Item, &row); err != nil {
		return nil, fmt.Errorf("failed to unmarshal settings: %w", err)
	}

	return row.toDomain(), nil
}

// SaveSettings overwrites the stored settings and stamps updated_at.
func (r *DynamoSettingsRepository) SaveSettings(ctx context.Context, s *domain.Settings) error {
	if s == nil {
		return fmt.Errorf("settings cannot be nil")
	}

	s.UpdatedAt = time.Now().UTC().Truncate(time.Millisecond)
	row := settingsItem{
		Key:             siteSettingsKey,
		SiteTitle:       s.SiteTitle,
		SiteDescription: s.SiteDescription,
		ContactEmail:    s.ContactEmail,
		PrimaryColor:    s.PrimaryColor,
		PostsPerPage:    s.PostsPerPage,
		UpdatedAt:       formatTimestamp(s.UpdatedAt),
	}

	av, err := attributevalue.MarshalMap(row)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	_, err = r.db.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.table),
		Item:      av,
	})
	if err != nil {
		log.Error().Err(err).Str("table", r.table).Msg("Failed to save settings")
		return &domain.InternalError{Op: "save settings", Err: err}
	}

	return nil
}

// settingsItem is the stored shape of the site settings.
type settingsItem struct {
	Key             string `dynamodbav:"key"`
	SiteTitle       string `dynamodbav:"site_title"`
	SiteDescription string `dynamodbav:"site_description"`
	ContactEmail    string `dynamodbav:"contact_email"`
	PrimaryColor    string `dynamodbav:"primary_color"`
	PostsPerPage    int    `dynamodbav:"posts_per_page"`
	UpdatedAt       string `dynamodbav:"updated_at"`
}

func (si *settingsItem) toDomain() *domain.Settings {
	s := &domain.Settings{
		SiteTitle:       si.SiteTitle,
		SiteDescription: si.SiteDescription,
		ContactEmail:    si.ContactEmail,
		PrimaryColor:    si.PrimaryColor,
		PostsPerPage:    si.PostsPerPage,
	}

	if t, err := parseTimestamp(si.UpdatedAt); err == nil {
		s.UpdatedAt = t
	}

	return s
}
