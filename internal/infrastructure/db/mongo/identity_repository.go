package mongo

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ecrbeachresorts/portal/internal/core/domain"
	"github.com/ecrbeachresorts/portal/internal/core/ports"
)

const collectionIdentities = "identities"

// IdentityRepository implements ports.IdentityRepository using MongoDB.
// The allocated identity ID is the document _id; email uniqueness is enforced
// by a unique index on the normalized email.
type IdentityRepository struct {
	col *mongo.Collection
}

func NewIdentityRepository(db *mongo.Database) *IdentityRepository {
	return &IdentityRepository{col: db.Collection(collectionIdentities)}
}

type identityDoc struct {
	ID                 string    `bson:"_id"`
	Name               string    `bson:"name"`
	Email              string    `bson:"email"`
	EmailNormalized    string    `bson:"email_normalized"`
	Phone              string    `bson:"phone,omitempty"`
	Role               string    `bson:"role"`
	KYCStatus          string    `bson:"kyc_status"`
	SubscriptionStatus string    `bson:"subscription_status,omitempty"`
	PasswordHash       string    `bson:"password_hash"`
	CreatedAt          time.Time `bson:"created_at"`
}

func toDoc(i *domain.Identity) identityDoc {
	return identityDoc{
		ID:                 i.ID,
		Name:               i.Name,
		Email:              i.Email,
		EmailNormalized:    domain.NormalizeEmail(i.Email),
		Phone:              i.Phone,
		Role:               string(i.Role),
		KYCStatus:          string(i.KYCStatus),
		SubscriptionStatus: string(i.SubscriptionStatus),
		PasswordHash:       i.PasswordHash,
		CreatedAt:          i.CreatedAt.UTC(),
	}
}

func (d identityDoc) toDomain() *domain.Identity {
	return &domain.Identity{
		ID:                 d.ID,
		Name:               d.Name,
		Email:              d.Email,
		Phone:              d.Phone,
		Role:               domain.ParseRole(d.Role),
		KYCStatus:          domain.KYCStatus(d.KYCStatus),
		SubscriptionStatus: domain.SubscriptionStatus(d.SubscriptionStatus),
		PasswordHash:       d.PasswordHash,
		CreatedAt:          d.CreatedAt.UTC(),
	}
}

// Create inserts a new identity document.
func (r *IdentityRepository) Create(ctx context.Context, identity *domain.Identity) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err := r.col.InsertOne(ctx, toDoc(identity))
	if err == nil {
		return nil
	}
	if mongo.IsDuplicateKeyError(err) {
		if strings.Contains(err.Error(), "email_normalized") {
			return domain.ErrEmailExists
		}
		return domain.ErrDuplicateID
	}
	return fmt.Errorf("insert identity: %w", err)
}

// FindByEmail matches on the normalized email.
func (r *IdentityRepository) FindByEmail(ctx context.Context, email string) (*domain.Identity, error) {
	return r.findOne(ctx, bson.M{"email_normalized": domain.NormalizeEmail(email)})
}

func (r *IdentityRepository) FindByID(ctx context.Context, id string) (*domain.Identity, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *IdentityRepository) findOne(ctx context.Context, filter bson.M) (*domain.Identity, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var doc identityDoc
	if err := r.col.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrIdentityNotFound
		}
		return nil, fmt.Errorf("find identity: %w", err)
	}
	return doc.toDomain(), nil
}

// CountByRole aggregates identity counts per role.
func (r *IdentityRepository) CountByRole(ctx context.Context) (map[domain.Role]int, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$role"},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
	}
	cur, err := r.col.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("count identities: %w", err)
	}
	defer cur.Close(ctx)

	counts := make(map[domain.Role]int)
	for cur.Next(ctx) {
		var row struct {
			Role  string `bson:"_id"`
			Count int    `bson:"count"`
		}
		if err := cur.Decode(&row); err != nil {
			return nil, fmt.Errorf("count identities: decode: %w", err)
		}
		counts[domain.ParseRole(row.Role)] += row.Count
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("count identities: %w", err)
	}
	return counts, nil
}

func (r *IdentityRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	return r.updateOne(ctx, id, bson.M{"password_hash": passwordHash})
}

func (r *IdentityRepository) UpdateKYCStatus(ctx context.Context, id string, status domain.KYCStatus) error {
	return r.updateOne(ctx, id, bson.M{"kyc_status": string(status)})
}

func (r *IdentityRepository) updateOne(ctx context.Context, id string, set bson.M) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := r.col.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("update identity: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrIdentityNotFound
	}
	return nil
}

// List returns a page of identities, newest first, and the total match count.
func (r *IdentityRepository) List(ctx context.Context, f ports.ListIdentitiesFilter) ([]*domain.Identity, int64, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	filter := bson.M{}
	if f.Role != "" {
		filter["role"] = string(f.Role)
	}
	if f.KYCStatus != "" {
		filter["kyc_status"] = string(f.KYCStatus)
	}
	if f.Search != "" {
		pattern := regexp.QuoteMeta(f.Search)
		filter["$or"] = bson.A{
			bson.M{"name": bson.M{"$regex": pattern, "$options": "i"}},
			bson.M{"email_normalized": bson.M{"$regex": pattern, "$options": "i"}},
		}
	}

	total, err := r.col.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("count identities: %w", err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetSkip(int64((f.Page - 1) * f.Limit)).
		SetLimit(int64(f.Limit))

	cur, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("list identities: %w", err)
	}
	defer cur.Close(ctx)

	var docs []identityDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, 0, fmt.Errorf("list identities: decode: %w", err)
	}

	items := make([]*domain.Identity, len(docs))
	for i, d := range docs {
		items[i] = d.toDomain()
	}
	return items, total, nil
}

// EnsureIndexes creates the indexes the repository relies on.
func (r *IdentityRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email_normalized", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("email_normalized_unique"),
		},
		{Keys: bson.D{{Key: "role", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "kyc_status", Value: 1}}},
	}

	_, err := r.col.Indexes().CreateMany(ctx, indexes)
	return err
}
