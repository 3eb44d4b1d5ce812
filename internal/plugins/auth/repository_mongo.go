package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/keyxmakerx/campus/internal/apperror"
)

// usersCollection holds every principal; role is a field, not a collection.
const usersCollection = "users"

// mongoUserRepository implements UserRepository on a MongoDB collection.
type mongoUserRepository struct {
	col *mongo.Collection
}

// NewMongoUserRepository creates a repository on db's users collection.
// Call EnsureUserIndexes once at startup so uniqueness is enforced.
func NewMongoUserRepository(db *mongo.Database) UserRepository {
	return &mongoUserRepository{col: db.Collection(usersCollection)}
}

// EnsureUserIndexes creates the unique email index and the sparse unique
// studentId index. Documents without a studentId are skipped by the sparse
// index, so teachers and admins never collide on it.
func EnsureUserIndexes(ctx context.Context, db *mongo.Database) error {
	models := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetName("uniq_email").SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "studentId", Value: 1}},
			Options: options.Index().SetName("uniq_student_id").SetUnique(true).SetSparse(true),
		},
	}
	if _, err := db.Collection(usersCollection).Indexes().CreateMany(ctx, models); err != nil {
		return fmt.Errorf("creating user indexes: %w", err)
	}
	return nil
}

func (r *mongoUserRepository) Create(ctx context.Context, user *User) error {
	_, err := r.col.InsertOne(ctx, user)
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("inserting user: %w", err)
	}
	return nil
}

func (r *mongoUserRepository) FindByID(ctx context.Context, id string) (*User, error) {
	return r.findOne(ctx, bson.D{{Key: "_id", Value: id}})
}

func (r *mongoUserRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	return r.findOne(ctx, bson.D{{Key: "email", Value: email}})
}

func (r *mongoUserRepository) EmailExists(ctx context.Context, email string) (bool, error) {
	return r.exists(ctx, bson.D{{Key: "email", Value: email}})
}

func (r *mongoUserRepository) StudentIDExists(ctx context.Context, studentID string) (bool, error) {
	return r.exists(ctx, bson.D{{Key: "studentId", Value: studentID}})
}

func (r *mongoUserRepository) UpdateRefreshToken(ctx context.Context, id, token string) error {
	set := bson.D{{Key: "updatedAt", Value: time.Now().UTC()}}
	if token == "" {
		return r.updateByID(ctx, id, bson.D{
			{Key: "$set", Value: set},
			{Key: "$unset", Value: bson.D{{Key: "refreshToken", Value: ""}}},
		})
	}
	set = append(set, bson.E{Key: "refreshToken", Value: token})
	return r.updateByID(ctx, id, bson.D{{Key: "$set", Value: set}})
}

// RotateRefreshToken matches on the old token inside the filter so the swap
// is atomic per document.
func (r *mongoUserRepository) RotateRefreshToken(ctx context.Context, id, oldToken, newToken string) (bool, error) {
	filter := bson.D{{Key: "_id", Value: id}, {Key: "refreshToken", Value: oldToken}}
	update := bson.D{{Key: "$set", Value: bson.D{
		{Key: "refreshToken", Value: newToken},
		{Key: "updatedAt", Value: time.Now().UTC()},
	}}}

	res, err := r.col.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, fmt.Errorf("rotating refresh token: %w", err)
	}
	return res.MatchedCount == 1, nil
}

func (r *mongoUserRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	update := bson.D{
		{Key: "$set", Value: bson.D{
			{Key: "passwordHash", Value: passwordHash},
			{Key: "updatedAt", Value: time.Now().UTC()},
		}},
		{Key: "$unset", Value: bson.D{{Key: "refreshToken", Value: ""}}},
	}
	return r.updateByID(ctx, id, update)
}

// --- Helpers ---

func (r *mongoUserRepository) findOne(ctx context.Context, filter bson.D) (*User, error) {
	var user User
	err := r.col.FindOne(ctx, filter).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperror.NewNotFound("user not found")
	}
	if err != nil {
		return nil, fmt.Errorf("querying user: %w", err)
	}
	return &user, nil
}

func (r *mongoUserRepository) exists(ctx context.Context, filter bson.D) (bool, error) {
	n, err := r.col.CountDocuments(ctx, filter, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("counting users: %w", err)
	}
	return n > 0, nil
}

func (r *mongoUserRepository) updateByID(ctx context.Context, id string, update bson.D) error {
	res, err := r.col.UpdateOne(ctx, bson.D{{Key: "_id", Value: id}}, update)
	if err != nil {
		return fmt.Errorf("updating user: %w", err)
	}
	if res.MatchedCount == 0 {
		return apperror.NewNotFound("user not found")
	}
	return nil
}
