package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/habitbloom/server/internal/domain/apperr"
	"github.com/habitbloom/server/internal/domain/models"
)

const (
	logsCollection    = "daily_logs"
	reportsCollection = "monthly_reports"
)

// Repository defines the storage operations the report pipeline consumes.
type Repository interface {
	QueryLogs(ctx context.Context, userID, dateFrom, dateTo string) ([]models.DailyLogEntry, error)
	GetReport(ctx context.Context, userID, yearMonth string) (*models.MonthlyReport, error)
	UpsertReport(ctx context.Context, report models.MonthlyReport, seenCount int) (*models.MonthlyReport, error)
	ListActiveUsers(ctx context.Context, dateFrom, dateTo string) ([]string, error)
}

// MongoDBRepository implements Repository on top of MongoDB.
type MongoDBRepository struct {
	client *mongo.Client
	dbName string
}

// NewMongoDBRepository connects, pings and ensures the uniqueness indexes
// the upsert contract relies on.
func NewMongoDBRepository(ctx context.Context, uri string, dbName string) (*MongoDBRepository, error) {
	clientOptions := options.Client().ApplyURI(uri)
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	// Ping the database to verify connection
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	repo := &MongoDBRepository{client: client, dbName: dbName}
	if err := repo.ensureIndexes(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure indexes: %w", err)
	}

	return repo, nil
}

func (r *MongoDBRepository) ensureIndexes(ctx context.Context) error {
	unique := options.Index().SetUnique(true)

	_, err := r.collection(logsCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "date", Value: 1}},
		Options: unique,
	})
	if err != nil {
		return err
	}

	_, err = r.collection(reportsCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "year_month", Value: 1}},
		Options: unique,
	})
	return err
}

func (r *MongoDBRepository) collection(name string) *mongo.Collection {
	return r.client.Database(r.dbName).Collection(name)
}

// QueryLogs returns the user's entries with dateFrom <= date <= dateTo,
// ordered by date ascending. Dates are ISO strings, so the range filter is
// plain lexical comparison.
func (r *MongoDBRepository) QueryLogs(ctx context.Context, userID, dateFrom, dateTo string) ([]models.DailyLogEntry, error) {
	filter := bson.M{
		"user_id": userID,
		"date":    bson.M{"$gte": dateFrom, "$lte": dateTo},
	}
	opts := options.Find().SetSort(bson.D{{Key: "date", Value: 1}})

	cursor, err := r.collection(logsCollection).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily logs: %w", err)
	}
	defer cursor.Close(ctx)

	var entries []models.DailyLogEntry
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode daily logs: %w", err)
	}
	return entries, nil
}

// GetReport fetches the report for (userID, yearMonth), or nil when none
// exists yet.
func (r *MongoDBRepository) GetReport(ctx context.Context, userID, yearMonth string) (*models.MonthlyReport, error) {
	filter := bson.M{"user_id": userID, "year_month": yearMonth}

	var report models.MonthlyReport
	err := r.collection(reportsCollection).FindOne(ctx, filter).Decode(&report)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load monthly report: %w", err)
	}
	return &report, nil
}

// UpsertReport persists a successful generation. seenCount is the
// regenerate_count the caller observed during its quota check; the write
// only succeeds if the stored counter still matches, so two racing
// generations cannot blend into one increment. On the first generation the
// unique (user_id, year_month) index plays the same role.
func (r *MongoDBRepository) UpsertReport(ctx context.Context, report models.MonthlyReport, seenCount int) (*models.MonthlyReport, error) {
	now := time.Now().UTC()

	if seenCount == 0 {
		report.ID = primitive.NilObjectID
		report.RegenerateCount = 1
		report.CreatedAt = now
		report.UpdatedAt = now

		res, err := r.collection(reportsCollection).InsertOne(ctx, report)
		if err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return nil, fmt.Errorf("%w: report already created for %s", apperr.ErrConflict, report.YearMonth)
			}
			return nil, fmt.Errorf("failed to insert monthly report: %w", err)
		}
		if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
			report.ID = oid
		}
		return &report, nil
	}

	filter := bson.M{
		"user_id":          report.UserID,
		"year_month":       report.YearMonth,
		"regenerate_count": seenCount,
	}
	update := bson.M{
		"$set": bson.M{
			"summary":        report.Summary,
			"detail":         report.Detail,
			"model":          report.Model,
			"prompt_version": report.PromptVersion,
			"updated_at":     now,
		},
		"$inc": bson.M{"regenerate_count": 1},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var updated models.MonthlyReport
	err := r.collection(reportsCollection).FindOneAndUpdate(ctx, filter, update, opts).Decode(&updated)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%w: regenerate_count moved past %d", apperr.ErrConflict, seenCount)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update monthly report: %w", err)
	}
	return &updated, nil
}

// ListActiveUsers returns the distinct user ids with at least one log entry
// in the date range. Used by the month-end pre-generation job.
func (r *MongoDBRepository) ListActiveUsers(ctx context.Context, dateFrom, dateTo string) ([]string, error) {
	filter := bson.M{"date": bson.M{"$gte": dateFrom, "$lte": dateTo}}

	raw, err := r.collection(logsCollection).Distinct(ctx, "user_id", filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list active users: %w", err)
	}

	users := make([]string, 0, len(raw))
	for _, v := range raw {
		if id, ok := v.(string); ok {
			users = append(users, id)
		}
	}
	return users, nil
}

// Close closes the MongoDB connection.
func (r *MongoDBRepository) Close(ctx context.Context) error {
	return r.client.Disconnect(ctx)
}
