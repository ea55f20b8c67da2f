package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/vladislavdragonenkov/vegshop/internal/domain"
)

type userDocument struct {
	ID                string    `bson:"_id"`
	FirstName         string    `bson:"first_name"`
	LastName          string    `bson:"last_name"`
	Email             string    `bson:"email"`
	PasswordHash      string    `bson:"password_hash"`
	Phone             string    `bson:"phone,omitempty"`
	Address           string    `bson:"address,omitempty"`
	City              string    `bson:"city,omitempty"`
	Pincode           string    `bson:"pincode,omitempty"`
	Role              string    `bson:"role"`
	AgreesToMarketing bool      `bson:"agrees_to_marketing"`
	CreatedAt         time.Time `bson:"created_at"`
	UpdatedAt         time.Time `bson:"updated_at"`
}

type userRepository struct {
	collection *mongo.Collection
}

// NewUserRepository создаёт MongoDB-реализацию UserRepository.
// Уникальность email обеспечивает индекс из EnsureIndexes.
func NewUserRepository(store *Store) domain.UserRepository {
	return &userRepository{collection: store.Database().Collection(collectionUsers)}
}

func (r *userRepository) Create(ctx context.Context, user domain.User) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	doc := userDocument{
		ID: user.ID, FirstName: user.FirstName, LastName: user.LastName,
		Email: domain.NormalizeEmail(user.Email), PasswordHash: user.PasswordHash,
		Phone: user.Phone, Address: user.Address, City: user.City, Pincode: user.Pincode,
		Role: string(user.Role), AgreesToMarketing: user.AgreesToMarketing,
		CreatedAt: user.CreatedAt, UpdatedAt: user.UpdatedAt,
	}
	_, err := r.collection.InsertOne(ctx, doc)
	if mongo.IsDuplicateKeyError(err) {
		return domain.ErrUserExists
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *userRepository) Get(ctx context.Context, id string) (domain.User, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	return r.findOne(ctx, bson.M{"email": domain.NormalizeEmail(email)})
}

func (r *userRepository) findOne(ctx context.Context, filter bson.M) (domain.User, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var doc userDocument
	err := r.collection.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.User{}, domain.ErrUserNotFound
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("find user: %w", err)
	}
	return domain.User{
		ID: doc.ID, FirstName: doc.FirstName, LastName: doc.LastName, Email: doc.Email,
		PasswordHash: doc.PasswordHash, Phone: doc.Phone, Address: doc.Address, City: doc.City,
		Pincode: doc.Pincode, Role: domain.Role(doc.Role), AgreesToMarketing: doc.AgreesToMarketing,
		CreatedAt: doc.CreatedAt.UTC(), UpdatedAt: doc.UpdatedAt.UTC(),
	}, nil
}

var _ domain.UserRepository = (*userRepository)(nil)
