package audit

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const auditCollection = "audit_log"

// mongoAuditRepository implements AuditRepository on a MongoDB collection.
type mongoAuditRepository struct {
	col *mongo.Collection
}

// NewMongoAuditRepository creates a repository on db's audit_log collection.
func NewMongoAuditRepository(db *mongo.Database) AuditRepository {
	return &mongoAuditRepository{col: db.Collection(auditCollection)}
}

// EnsureAuditIndexes creates the index backing the newest-first listing.
func EnsureAuditIndexes(ctx context.Context, db *mongo.Database) error {
	model := mongo.IndexModel{Keys: bson.D{{Key: "createdAt", Value: -1}}}
	if _, err := db.Collection(auditCollection).Indexes().CreateOne(ctx, model); err != nil {
		return fmt.Errorf("creating audit index: %w", err)
	}
	return nil
}

func (r *mongoAuditRepository) Log(ctx context.Context, entry *Entry) error {
	if _, err := r.col.InsertOne(ctx, entry); err != nil {
		return fmt.Errorf("inserting audit entry: %w", err)
	}
	return nil
}

func (r *mongoAuditRepository) List(ctx context.Context, limit, offset int) ([]Entry, int, error) {
	total, err := r.col.CountDocuments(ctx, bson.D{})
	if err != nil {
		return nil, 0, fmt.Errorf("counting audit entries: %w", err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))
	cursor, err := r.col.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("listing audit entries: %w", err)
	}
	defer cursor.Close(ctx)

	var entries []Entry
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, 0, fmt.Errorf("decoding audit entries: %w", err)
	}

	return entries, int(total), nil
}
