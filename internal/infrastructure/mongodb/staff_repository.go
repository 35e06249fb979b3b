package mongodb

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/wms-platform/verification-service/internal/domain"
)

const staffCollection = "staff"

// StaffRepository implements domain.StaffDirectory on MongoDB
type StaffRepository struct {
	collection *mongo.Collection
}

func NewStaffRepository(db *mongo.Database) *StaffRepository {
	return &StaffRepository{collection: db.Collection(staffCollection)}
}

func (r *StaffRepository) FindStaff(ctx context.Context, code string) (*domain.Staff, error) {
	var doc staffDocument
	err := r.collection.FindOne(ctx, bson.M{"_id": code}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find staff %s: %w", code, err)
	}
	return &domain.Staff{Code: doc.Code, Name: doc.Name}, nil
}

func (r *StaffRepository) ListStaff(ctx context.Context) ([]*domain.Staff, error) {
	cursor, err := r.collection.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to list staff: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []staffDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode staff: %w", err)
	}

	staff := make([]*domain.Staff, len(docs))
	for i, d := range docs {
		staff[i] = &domain.Staff{Code: d.Code, Name: d.Name}
	}
	return staff, nil
}

// UpsertStaff creates or renames a staff member
func (r *StaffRepository) UpsertStaff(ctx context.Context, staff domain.Staff) error {
	_, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": staff.Code},
		bson.M{"$set": bson.M{"name": staff.Name}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to save staff %s: %w", staff.Code, err)
	}
	return nil
}
