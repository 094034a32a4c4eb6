package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/samvad-hq/samvad-briefing/internal/domain"
)

const (
	defaultMongoDatabase = "samvad_briefing"
	countersCollection   = "counters"
	briefingCounterID    = "briefings"
)

// mongoRepository stores briefings with an embedded article snapshot and a
// numeric id drawn from a counters collection.
type mongoRepository struct {
	client    *mongo.Client
	articles  *mongo.Collection
	briefings *mongo.Collection
	counters  *mongo.Collection
}

type articleDoc struct {
	ID              string    `bson:"_id"`
	Title           string    `bson:"title"`
	Content         string    `bson:"content"`
	Author          string    `bson:"author,omitempty"`
	PublicationDate string    `bson:"publication_date,omitempty"`
	SourceURL       string    `bson:"source_url"`
	SourceType      string    `bson:"source_type"`
	Summary         string    `bson:"summary,omitempty"`
	Status          string    `bson:"status"`
	CreatedAt       time.Time `bson:"created_at"`
	UpdatedAt       time.Time `bson:"updated_at"`
}

type briefingDoc struct {
	ID         int64        `bson:"id"`
	Date       string       `bson:"date"`
	Title      string       `bson:"title"`
	Articles   []articleDoc `bson:"articles"`
	ArticleIDs []string     `bson:"article_ids"`
	TotalCount int          `bson:"total_count"`
	AISummary  string       `bson:"ai_summary"`
	FullText   string       `bson:"full_text"`
	CreatedAt  time.Time    `bson:"created_at"`
}

func toArticleDoc(a domain.Article) articleDoc {
	return articleDoc{
		ID:              a.ID,
		Title:           a.Title,
		Content:         a.Content,
		Author:          a.Author,
		PublicationDate: a.PublicationDate,
		SourceURL:       a.SourceURL,
		SourceType:      string(a.SourceType),
		Summary:         a.Summary,
		Status:          string(a.Status),
		CreatedAt:       a.CreatedAt.UTC(),
		UpdatedAt:       a.UpdatedAt.UTC(),
	}
}

func (d articleDoc) article() domain.Article {
	return domain.Article{
		ID:              d.ID,
		Title:           d.Title,
		Content:         d.Content,
		Author:          d.Author,
		PublicationDate: d.PublicationDate,
		SourceURL:       d.SourceURL,
		SourceType:      domain.SourceType(d.SourceType),
		Summary:         d.Summary,
		Status:          domain.ArticleStatus(d.Status),
		CreatedAt:       d.CreatedAt.UTC(),
		UpdatedAt:       d.UpdatedAt.UTC(),
	}
}

func toBriefingDoc(b domain.Briefing, articleIDs []string) briefingDoc {
	arts := make([]articleDoc, 0, len(b.Articles))
	for _, a := range b.Articles {
		arts = append(arts, toArticleDoc(a))
	}
	return briefingDoc{
		ID:         b.ID,
		Date:       b.Date,
		Title:      b.Title,
		Articles:   arts,
		ArticleIDs: append([]string{}, articleIDs...),
		TotalCount: b.TotalCount,
		AISummary:  b.AISummary,
		FullText:   b.FullText,
		CreatedAt:  b.CreatedAt.UTC(),
	}
}

func (d briefingDoc) briefing() domain.Briefing {
	b := domain.Briefing{
		ID:        d.ID,
		Date:      d.Date,
		Title:     d.Title,
		Articles:  make([]domain.Article, 0, len(d.Articles)),
		AISummary: d.AISummary,
		FullText:  d.FullText,
		CreatedAt: d.CreatedAt.UTC(),
	}
	for _, a := range d.Articles {
		b.Articles = append(b.Articles, a.article())
	}
	b.Normalize()
	return b
}

func openMongo(ctx context.Context, opts Options) (*mongoRepository, error) {
	ctx, cancel := context.WithTimeout(ctx, opts.ConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(opts.MongoURI))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	name := strings.TrimSpace(opts.MongoDatabase)
	if name == "" {
		name = defaultMongoDatabase
	}
	db := client.Database(name)
	repo := &mongoRepository{
		client:    client,
		articles:  db.Collection("articles"),
		briefings: db.Collection("briefings"),
		counters:  db.Collection(countersCollection),
	}

	_, err = repo.briefings.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "date", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "id", Value: 1}}},
	})
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ensure briefing indexes: %w", err)
	}
	return repo, nil
}

func (r *mongoRepository) Close() error {
	if r == nil || r.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return r.client.Disconnect(ctx)
}

func (r *mongoRepository) UpsertArticle(ctx context.Context, a domain.Article) (string, error) {
	if a.ID == "" {
		return "", fmt.Errorf("article id is required")
	}
	_, err := r.articles.ReplaceOne(ctx, bson.M{"_id": a.ID}, toArticleDoc(a), options.Replace().SetUpsert(true))
	if err != nil {
		return "", fmt.Errorf("upsert article %s: %w", a.ID, err)
	}
	return a.ID, nil
}

func (r *mongoRepository) UpsertBriefing(ctx context.Context, b domain.Briefing, articleIDs []string) (int64, error) {
	b, err := prepareBriefing(b)
	if err != nil {
		return 0, err
	}

	id, err := r.existingID(ctx, b.Date)
	if err != nil {
		return 0, err
	}
	if id == 0 {
		if id, err = r.nextID(ctx); err != nil {
			return 0, err
		}
	}

	doc := toBriefingDoc(b, articleIDs)
	set := bson.M{
		"title":       doc.Title,
		"articles":    doc.Articles,
		"article_ids": doc.ArticleIDs,
		"total_count": doc.TotalCount,
		"ai_summary":  doc.AISummary,
		"full_text":   doc.FullText,
		"created_at":  doc.CreatedAt,
	}
	update := bson.M{"$set": set, "$setOnInsert": bson.M{"id": id}}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var stored briefingDoc
	if err := r.briefings.FindOneAndUpdate(ctx, bson.M{"date": b.Date}, update, opts).Decode(&stored); err != nil {
		return 0, fmt.Errorf("upsert briefing %s: %w", b.Date, err)
	}
	return stored.ID, nil
}

func (r *mongoRepository) existingID(ctx context.Context, date string) (int64, error) {
	var doc struct {
		ID int64 `bson:"id"`
	}
	err := r.briefings.FindOne(ctx, bson.M{"date": date}, options.FindOne().SetProjection(bson.M{"id": 1})).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("lookup briefing %s: %w", date, err)
	}
	return doc.ID, nil
}

func (r *mongoRepository) nextID(ctx context.Context) (int64, error) {
	var counter struct {
		Seq int64 `bson:"seq"`
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	err := r.counters.FindOneAndUpdate(ctx, bson.M{"_id": briefingCounterID}, bson.M{"$inc": bson.M{"seq": int64(1)}}, opts).Decode(&counter)
	if err != nil {
		return 0, fmt.Errorf("allocate briefing id: %w", err)
	}
	return counter.Seq, nil
}

func (r *mongoRepository) GetBriefingByDate(ctx context.Context, date string) (domain.Briefing, bool, error) {
	return r.findOne(ctx, bson.M{"date": date}, options.FindOne())
}

func (r *mongoRepository) GetLatestBriefing(ctx context.Context) (domain.Briefing, bool, error) {
	return r.findOne(ctx, bson.M{}, options.FindOne().SetSort(bson.D{{Key: "date", Value: -1}}))
}

func (r *mongoRepository) findOne(ctx context.Context, filter bson.M, opts *options.FindOneOptions) (domain.Briefing, bool, error) {
	var doc briefingDoc
	err := r.briefings.FindOne(ctx, filter, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.Briefing{}, false, nil
	}
	if err != nil {
		return domain.Briefing{}, false, fmt.Errorf("find briefing: %w", err)
	}
	return doc.briefing(), true, nil
}

func (r *mongoRepository) ListBriefings(ctx context.Context, limit, offset int) ([]domain.Briefing, error) {
	limit, offset = clampPage(limit, offset)
	opts := options.Find().
		SetSort(bson.D{{Key: "date", Value: -1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))

	cursor, err := r.briefings.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("list briefings: %w", err)
	}
	defer cursor.Close(ctx)

	out := make([]domain.Briefing, 0, limit)
	for cursor.Next(ctx) {
		var doc briefingDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode briefing: %w", err)
		}
		out = append(out, doc.briefing())
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %w", err)
	}
	return out, nil
}
