package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/go_checkout/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var ErrAttemptNotFound = errors.New("payment attempt not found")

const journalRetention = 30 * 24 * time.Hour

type mongoRepository struct {
	collection *mongo.Collection
}

func NewMongoRepository(db *mongo.Database) AttemptRepository {
	return &mongoRepository{
		collection: db.Collection("payment_attempts"),
	}
}

func (m *mongoRepository) Upsert(ctx context.Context, attempt *domain.PaymentAttempt) error {
	now := time.Now()
	attempt.UpdatedAt = now
	if attempt.CreatedAt.IsZero() {
		attempt.CreatedAt = now
	}

	set := bson.M{
		"session_id":   attempt.SessionID,
		"state":        attempt.State,
		"last_status":  attempt.LastStatus,
		"poll_attempt": attempt.PollAttempt,
		"failure":      attempt.Failure,
		"updated_at":   attempt.UpdatedAt,
	}
	setOnInsert := bson.M{"created_at": attempt.CreatedAt}
	if attempt.TransactionID != "" {
		set["transaction_id"] = attempt.TransactionID
	}
	// order_created only moves forward; a late transition must not clear it
	if attempt.OrderCreated {
		set["order_created"] = true
		set["order_number"] = attempt.OrderNumber
	} else {
		setOnInsert["order_created"] = false
	}

	filter := bson.M{"attempt_id": attempt.AttemptID}
	update := bson.M{"$set": set, "$setOnInsert": setOnInsert}

	_, err := m.collection.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to upsert payment attempt: %w", err)
	}
	return nil
}

func (m *mongoRepository) GetByAttemptID(ctx context.Context, attemptID string) (*domain.PaymentAttempt, error) {
	return m.findOne(ctx, bson.M{"attempt_id": attemptID})
}

func (m *mongoRepository) GetByTransactionID(ctx context.Context, transactionID string) (*domain.PaymentAttempt, error) {
	return m.findOne(ctx, bson.M{"transaction_id": transactionID})
}

func (m *mongoRepository) MarkOrderCreated(ctx context.Context, transactionID, orderNumber string) error {
	filter := bson.M{"transaction_id": transactionID}
	update := bson.M{"$set": bson.M{
		"order_created": true,
		"order_number":  orderNumber,
		"updated_at":    time.Now(),
	}}

	result, err := m.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to mark order created: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrAttemptNotFound
	}
	return nil
}

func (m *mongoRepository) findOne(ctx context.Context, filter bson.M) (*domain.PaymentAttempt, error) {
	var attempt domain.PaymentAttempt
	err := m.collection.FindOne(ctx, filter).Decode(&attempt)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("failed to get payment attempt: %w", err)
	}
	return &attempt, nil
}

func (m *mongoRepository) CreateIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "attempt_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "transaction_id", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"transaction_id": bson.M{"$type": "string"}}),
		},
		{
			Keys:    bson.D{{Key: "updated_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(int32(journalRetention.Seconds())),
		},
	}

	_, err := m.collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}
	return nil
}

// EnsureIndexes creates the journal indexes when repo is the Mongo implementation.
func EnsureIndexes(ctx context.Context, repo AttemptRepository) error {
	if m, ok := repo.(*mongoRepository); ok {
		return m.CreateIndexes(ctx)
	}
	return nil
}
