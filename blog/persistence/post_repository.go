package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/dfryer1193/goblog/blog/content"
	"github.com/dfryer1193/goblog/blog/domain"
	"github.com/dfryer1193/goblog/internal/metrics"
	"github.com/dfryer1193/goblog/shared/dynamo"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var _ domain.PostRepository = (*DynamoPostRepository)(nil)

// errStopScan ends a scan early without reporting an error.
var errStopScan = errors.New("stop scan")

// DynamoPostRepository implements domain.PostRepository on a DynamoDB table
// keyed by (id, created_at). The table has no secondary indexes, so every
// lookup other than by id is a full scan.
type DynamoPostRepository struct {
	db    dynamo.API
	table string
	now   func() time.Time
}

type Option func(*DynamoPostRepository)

// WithClock replaces the clock used for created_at and updated_at.
func WithClock(now func() time.Time) Option {
	return func(r *DynamoPostRepository) {
		r.now = now
	}
}

// NewPostRepository creates a DynamoPostRepository for the given table.
func NewPostRepository(db dynamo.API, table string, opts ...Option) *DynamoPostRepository {
	r := &DynamoPostRepository{
		db:    db,
		table: table,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ListAll returns every post matching filter, unsorted.
// The status predicate is pushed into the scan filter. The search term is
// matched in process because DynamoDB's contains() is case-sensitive.
func (r *DynamoPostRepository) ListAll(ctx context.Context, filter domain.PostFilter) ([]*domain.Post, error) {
	input := &dynamodb.ScanInput{TableName: aws.String(r.table)}

	if cond, ok := statusCondition(filter.Status); ok {
		expr, err := expression.NewBuilder().WithFilter(cond).Build()
		if err != nil {
			return nil, fmt.Errorf("failed to build post filter: %w", err)
		}
		input.FilterExpression = expr.Filter()
		input.ExpressionAttributeNames = expr.Names()
		input.ExpressionAttributeValues = expr.Values()
	}

	posts := make([]*domain.Post, 0)
	err := r.scanAll(ctx, "list posts", input, func(p *domain.Post) error {
		if filter.Matches(p) {
			posts = append(posts, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return posts, nil
}

// ListPublished returns every published post, unsorted.
func (r *DynamoPostRepository) ListPublished(ctx context.Context) ([]*domain.Post, error) {
	return r.ListAll(ctx, domain.PostFilter{Status: domain.StatusPublished})
}

// Search returns every published post whose title or content contains term.
func (r *DynamoPostRepository) Search(ctx context.Context, term string) ([]*domain.Post, error) {
	return r.ListAll(ctx, domain.PostFilter{Status: domain.StatusPublished, SearchTerm: term})
}

// ListForSitemap returns slug and updated_at of every published post.
func (r *DynamoPostRepository) ListForSitemap(ctx context.Context) ([]domain.SitemapEntry, error) {
	cond, _ := statusCondition(domain.StatusPublished)
	proj := expression.NamesList(
		expression.Name("slug"),
		expression.Name("updated_at"),
		expression.Name("published"),
	)
	expr, err := expression.NewBuilder().WithFilter(cond).WithProjection(proj).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build sitemap projection: %w", err)
	}

	input := &dynamodb.ScanInput{
		TableName:                 aws.String(r.table),
		FilterExpression:          expr.Filter(),
		ProjectionExpression:      expr.Projection(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	}

	entries := make([]domain.SitemapEntry, 0)
	err = r.scanPages(ctx, "list sitemap entries", input, func(items []map[string]types.AttributeValue) error {
		var rows []sitemapItem
		if err := attributevalue.UnmarshalListOfMaps(items, &rows); err != nil {
			return fmt.Errorf("failed to unmarshal sitemap entries: %w", err)
		}
		for _, row := range rows {
			if !row.Published {
				continue
			}
			updatedAt, err := parseTimestamp(row.UpdatedAt)
			if err != nil {
				return err
			}
			entries = append(entries, domain.SitemapEntry{Slug: row.Slug, UpdatedAt: updatedAt})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return entries, nil
}

// GetByID retrieves a post by id alone. The id is the partition key, so this
// is a query over the partition rather than a point read.
func (r *DynamoPostRepository) GetByID(ctx context.Context, id string) (*domain.Post, error) {
	if id == "" {
		return nil, domain.NewValidationError("id", "cannot be empty")
	}

	keyCond := expression.Key(dynamo.PostsHashKey).Equal(expression.Value(id))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build key condition: %w", err)
	}

	input := &dynamodb.QueryInput{
		TableName:                 aws.String(r.table),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	}

	for {
		out, err := r.db.Query(ctx, input)
		if err != nil {
			return nil, r.storeError("get post", err)
		}

		if len(out.Items) > 0 {
			return unmarshalPost(out.Items[0])
		}

		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		input.ExclusiveStartKey = out.LastEvaluatedKey
	}

	return nil, fmt.Errorf("post %s: %w", id, domain.ErrNotFound)
}

// GetBySlug returns the first published post with the given slug in scan order.
// Drafts sharing the slug are never returned.
func (r *DynamoPostRepository) GetBySlug(ctx context.Context, slug string) (*domain.Post, error) {
	input, err := r.slugScanInput(slug, true)
	if err != nil {
		return nil, err
	}

	var found *domain.Post
	err = r.scanAll(ctx, "get post by slug", input, func(p *domain.Post) error {
		if p.Slug == slug && p.Published {
			found = p
			return errStopScan
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if found == nil {
		return nil, fmt.Errorf("post with slug %q: %w", slug, domain.ErrNotFound)
	}
	return found, nil
}

// GetBySlugAny returns the first published post with the slug, or the first
// draft when none is published.
func (r *DynamoPostRepository) GetBySlugAny(ctx context.Context, slug string) (*domain.Post, error) {
	input, err := r.slugScanInput(slug, false)
	if err != nil {
		return nil, err
	}

	var published, first *domain.Post
	err = r.scanAll(ctx, "get post by slug", input, func(p *domain.Post) error {
		if p.Slug != slug {
			return nil
		}
		if first == nil {
			first = p
		}
		if p.Published {
			published = p
			return errStopScan
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	switch {
	case published != nil:
		return published, nil
	case first != nil:
		return first, nil
	}
	return nil, fmt.Errorf("post with slug %q: %w", slug, domain.ErrNotFound)
}

func (r *DynamoPostRepository) slugScanInput(slug string, publishedOnly bool) (*dynamodb.ScanInput, error) {
	if slug == "" {
		return nil, domain.NewValidationError("slug", "cannot be empty")
	}

	cond := expression.Name("slug").Equal(expression.Value(slug))
	if publishedOnly {
		published, _ := statusCondition(domain.StatusPublished)
		cond = cond.And(published)
	}

	expr, err := expression.NewBuilder().WithFilter(cond).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build slug filter: %w", err)
	}

	return &dynamodb.ScanInput{
		TableName:                 aws.String(r.table),
		FilterExpression:          expr.Filter(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	}, nil
}

// Create stores a new post with a generated id, equal created_at and
// updated_at, zero views and derived slug and excerpt.
func (r *DynamoPostRepository) Create(ctx context.Context, draft domain.PostDraft) (*domain.Post, error) {
	now := r.timestamp()
	post := &domain.Post{
		ID:        uuid.NewString(),
		CreatedAt: now,
		UpdatedAt: now,
		Title:     draft.Title,
		Content:   draft.Content,
		Slug:      content.Slugify(draft.Title),
		Excerpt:   content.Excerpt(draft.Content),
		Author:    draft.Author,
		Published: draft.Published,
		Views:     0,
	}

	av, err := attributevalue.MarshalMap(fromDomain(post))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal post: %w", err)
	}

	expr, err := expression.NewBuilder().
		WithCondition(expression.AttributeNotExists(expression.Name(dynamo.PostsHashKey))).
		Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build create condition: %w", err)
	}

	_, err = r.db.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                 aws.String(r.table),
		Item:                      av,
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		return nil, r.storeError("create post", err)
	}

	return post, nil
}

// Update applies a partial update to the post addressed by key.
// updated_at is always set, and always moves past its previous value even
// when the clock has not. A new title always rewrites the slug and new
// content always rewrites the excerpt.
func (r *DynamoPostRepository) Update(ctx context.Context, key domain.PostKey, update domain.PostUpdate) (*domain.Post, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}

	previous := update.LastUpdatedAt
	if previous.IsZero() {
		stored, err := r.storedUpdatedAt(ctx, key)
		if err != nil {
			return nil, err
		}
		previous = stored
	}
	updatedAt := nextTimestamp(r.timestamp(), previous)

	set := expression.Set(expression.Name("updated_at"), expression.Value(formatTimestamp(updatedAt)))
	if update.Title != nil {
		set = set.
			Set(expression.Name("title"), expression.Value(*update.Title)).
			Set(expression.Name("slug"), expression.Value(content.Slugify(*update.Title)))
	}
	if update.Content != nil {
		set = set.
			Set(expression.Name("content"), expression.Value(*update.Content)).
			Set(expression.Name("excerpt"), expression.Value(content.Excerpt(*update.Content)))
	}
	if update.Published != nil {
		set = set.Set(expression.Name("published"), expression.Value(*update.Published))
	}

	expr, err := expression.NewBuilder().WithUpdate(set).WithCondition(postExists()).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build post update: %w", err)
	}

	out, err := r.db.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.table),
		Key:                       keyAttributes(key),
		UpdateExpression:          expr.Update(),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ReturnValues:              types.ReturnValueAllNew,
	})
	if err != nil {
		if isConditionFailed(err) {
			return nil, fmt.Errorf("post %s: %w", key.ID, domain.ErrNotFound)
		}
		return nil, r.storeError("update post", err)
	}

	return unmarshalPost(out.Attributes)
}

// storedUpdatedAt reads the current updated_at of the post addressed by key.
func (r *DynamoPostRepository) storedUpdatedAt(ctx context.Context, key domain.PostKey) (time.Time, error) {
	expr, err := expression.NewBuilder().
		WithProjection(expression.NamesList(expression.Name("updated_at"))).
		Build()
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to build updated_at projection: %w", err)
	}

	out, err := r.db.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:                aws.String(r.table),
		Key:                      keyAttributes(key),
		ProjectionExpression:     expr.Projection(),
		ExpressionAttributeNames: expr.Names(),
		ConsistentRead:           aws.Bool(true),
	})
	if err != nil {
		return time.Time{}, r.storeError("update post", err)
	}
	if len(out.Item) == 0 {
		return time.Time{}, fmt.Errorf("post %s: %w", key.ID, domain.ErrNotFound)
	}

	var row struct {
		UpdatedAt string `dynamodbav:"updated_at"`
	}
	if err := attributevalue.UnmarshalMap(out.Item, &row); err != nil {
		return time.Time{}, fmt.Errorf("failed to unmarshal updated_at: %w", err)
	}
	return parseTimestamp(row.UpdatedAt)
}

// Delete removes the post addressed by key. Deleting a missing key is not an error.
func (r *DynamoPostRepository) Delete(ctx context.Context, key domain.PostKey) error {
	if err := validateKey(key); err != nil {
		return err
	}

	_, err := r.db.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(r.table),
		Key:       keyAttributes(key),
	})
	if err != nil {
		return r.storeError("delete post", err)
	}

	return nil
}

// IncrementViews atomically adds one to the post's view counter,
// starting from zero when the attribute is absent.
func (r *DynamoPostRepository) IncrementViews(ctx context.Context, key domain.PostKey) error {
	if err := validateKey(key); err != nil {
		return err
	}

	views := expression.Name("views")
	expr, err := expression.NewBuilder().
		WithUpdate(expression.Set(views, expression.Plus(views.IfNotExists(expression.Value(0)), expression.Value(1)))).
		WithCondition(postExists()).
		Build()
	if err != nil {
		return fmt.Errorf("failed to build view increment: %w", err)
	}

	_, err = r.db.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.table),
		Key:                       keyAttributes(key),
		UpdateExpression:          expr.Update(),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		if isConditionFailed(err) {
			return fmt.Errorf("post %s: %w", key.ID, domain.ErrNotFound)
		}
		return r.storeError("increment views", err)
	}

	return nil
}

// scanAll runs input to completion, handing every decoded post to fn.
func (r *DynamoPostRepository) scanAll(ctx context.Context, op string, input *dynamodb.ScanInput, fn func(*domain.Post) error) error {
	return r.scanPages(ctx, op, input, func(items []map[string]types.AttributeValue) error {
		for _, item := range items {
			p, err := unmarshalPost(item)
			if err != nil {
				return err
			}
			if err := fn(p); err != nil {
				return err
			}
		}
		return nil
	})
}

// scanPages follows LastEvaluatedKey until the scan is exhausted. A failed
// page aborts the whole scan; partial results are never returned.
func (r *DynamoPostRepository) scanPages(ctx context.Context, op string, input *dynamodb.ScanInput, fn func([]map[string]types.AttributeValue) error) error {
	for {
		out, err := r.db.Scan(ctx, input)
		if err != nil {
			return r.storeError(op, err)
		}
		metrics.ScanPages.WithLabelValues(r.table).Inc()

		if err := fn(out.Items); err != nil {
			if errors.Is(err, errStopScan) {
				return nil
			}
			return err
		}

		if len(out.LastEvaluatedKey) == 0 {
			return nil
		}
		input.ExclusiveStartKey = out.LastEvaluatedKey
	}
}

func (r *DynamoPostRepository) storeError(op string, err error) error {
	log.Error().Err(err).Str("table", r.table).Str("op", op).Msg("Post store operation failed")
	return &domain.InternalError{Op: op, Err: err}
}

func (r *DynamoPostRepository) timestamp() time.Time {
	return r.now().UTC().Truncate(time.Millisecond)
}

// nextTimestamp returns now, or the first stored tick after previous when
// now does not lie past it.
func nextTimestamp(now, previous time.Time) time.Time {
	floor := previous.UTC().Truncate(time.Millisecond).Add(time.Millisecond)
	if now.Before(floor) {
		return floor
	}
	return now
}

func postExists() expression.ConditionBuilder {
	return expression.AttributeExists(expression.Name(dynamo.PostsHashKey))
}

func statusCondition(status domain.Status) (expression.ConditionBuilder, bool) {
	switch status {
	case domain.StatusPublished:
		return expression.Name("published").Equal(expression.Value(true)), true
	case domain.StatusDraft:
		return expression.Name("published").Equal(expression.Value(false)), true
	}
	return expression.ConditionBuilder{}, false
}

func validateKey(key domain.PostKey) error {
	if key.ID == "" {
		return domain.NewValidationError("id", "cannot be empty")
	}
	if key.CreatedAt.IsZero() {
		return domain.NewValidationError("created_at", "cannot be empty")
	}
	return nil
}

func keyAttributes(key domain.PostKey) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		dynamo.PostsHashKey:  stringValue(key.ID),
		dynamo.PostsRangeKey: stringValue(formatTimestamp(key.CreatedAt)),
	}
}

func isConditionFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}

func stringValue(s string) types.AttributeValue {
	return &types.AttributeValueMemberS{Value: s}
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(domain.TimestampLayout)
}

// parseTimestamp accepts the canonical layout and any RFC 3339 timestamp.
func parseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse(domain.TimestampLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}

// postItem is the stored shape of a post.
type postItem struct {
	ID        string `dynamodbav:"id"`
	CreatedAt string `dynamodbav:"created_at"`
	UpdatedAt string `dynamodbav:"updated_at"`
	Title     string `dynamodbav:"title"`
	Content   string `dynamodbav:"content"`
	Slug      string `dynamodbav:"slug"`
	Excerpt   string `dynamodbav:"excerpt"`
	Author    string `dynamodbav:"author"`
	Published bool   `dynamodbav:"published"`
	Views     int    `dynamodbav:"views"`
}

type sitemapItem struct {
	Slug      string `dynamodbav:"slug"`
	UpdatedAt string `dynamodbav:"updated_at"`
	Published bool   `dynamodbav:"published"`
}

func fromDomain(p *domain.Post) *postItem {
	return &postItem{
		ID:        p.ID,
		CreatedAt: formatTimestamp(p.CreatedAt),
		UpdatedAt: formatTimestamp(p.UpdatedAt),
		Title:     p.Title,
		Content:   p.Content,
		Slug:      p.Slug,
		Excerpt:   p.Excerpt,
		Author:    p.Author,
		Published: p.Published,
		Views:     p.Views,
	}
}

// toDomain converts a postItem to a domain.Post, parsing the stored timestamps.
func (pi *postItem) toDomain() (*domain.Post, error) {
	createdAt, err := parseTimestamp(pi.CreatedAt)
	if err != nil {
		return nil, err
	}
	updatedAt, err := parseTimestamp(pi.UpdatedAt)
	if err != nil {
		return nil, err
	}

	return &domain.Post{
		ID:        pi.ID,
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
		Title:     pi.Title,
		Content:   pi.Content,
		Slug:      pi.Slug,
		Excerpt:   pi.Excerpt,
		Author:    pi.Author,
		Published: pi.Published,
		Views:     pi.Views,
	}, nil
}

func unmarshalPost(av map[string]types.AttributeValue) (*domain.Post, error) {
	var item postItem
	if err := attributevalue.UnmarshalMap(av, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal post: %w", err)
	}
	return item.toDomain()
}
