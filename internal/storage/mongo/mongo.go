// mongo — хранилище refresh-токенов в MongoDB (storage.token_store=mongo).
// Пользователи и роли при этом остаются в основном хранилище.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pribylovaa/go-auth-service/internal/models"
	"github.com/pribylovaa/go-auth-service/internal/storage"
	"go.mongodb.org/mongo-driver/bson"
	mongodriver "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	refreshCollection = "refresh_tokens"
	defaultDBName     = "auth"
)

// TokenStore — адаптер MongoDB для storage.RefreshTokenStorage.
type TokenStore struct {
	client *mongodriver.Client
	tokens *mongodriver.Collection
}

type refreshDoc struct {
	ID        string    `bson:"_id"`
	UserID    string    `bson:"user_id"`
	TokenHash string    `bson:"token_hash"`
	ExpiresAt time.Time `bson:"expires_at"`
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

func (d *refreshDoc) model() (*models.RefreshToken, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, err
	}
	uid, err := uuid.Parse(d.UserID)
	if err != nil {
		return nil, err
	}

	return &models.RefreshToken{
		ID:        id,
		UserID:    uid,
		TokenHash: d.TokenHash,
		ExpiresAt: d.ExpiresAt.UTC(),
		CreatedAt: d.CreatedAt.UTC(),
		UpdatedAt: d.UpdatedAt.UTC(),
	}, nil
}

// New подключается к MongoDB, проверяет соединение и создаёт индексы.
func New(ctx context.Context, uri, dbName string) (*TokenStore, error) {
	const op = "storage.mongo.New"

	if uri == "" {
		return nil, fmt.Errorf("%s: empty uri", op)
	}
	if dbName == "" {
		dbName = defaultDBName
	}

	cli, err := mongodriver.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("%s: connect: %w", op, err)
	}

	if err := cli.Ping(ctx, readpref.Primary()); err != nil {
		_ = cli.Disconnect(context.Background())
		return nil, fmt.Errorf("%s: ping: %w", op, err)
	}

	s := &TokenStore{
		client: cli,
		tokens: cli.Database(dbName).Collection(refreshCollection),
	}

	if err := s.ensureIndexes(ctx); err != nil {
		_ = cli.Disconnect(context.Background())
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return s, nil
}

// ensureIndexes создаёт индексы коллекции:
// - уникальность user_id (одна сессия на пользователя) и token_hash;
// - TTL по expires_at (expireAfterSeconds=0 — срок берётся из документа).
func (s *TokenStore) ensureIndexes(ctx context.Context) error {
	idx := []mongodriver.IndexModel{
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}},
			Options: options.Index().SetName("uniq_user_id").SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "token_hash", Value: 1}},
			Options: options.Index().SetName("uniq_token_hash").SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetName("ttl_expires_at").SetExpireAfterSeconds(0),
		},
	}

	if _, err := s.tokens.Indexes().CreateMany(ctx, idx); err != nil {
		return fmt.Errorf("ensure indexes: %w", err)
	}

	return nil
}

// Ping проверяет доступность MongoDB.
func (s *TokenStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

// Close отключает клиента.
func (s *TokenStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func mapErr(op string, err error) error {
	if errors.Is(err, mongodriver.ErrNoDocuments) {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	if mongodriver.IsDuplicateKeyError(err) {
		return fmt.Errorf("%s: %w", op, storage.ErrAlreadyExists)
	}

	return fmt.Errorf("%s: %w", op, err)
}

func (s *TokenStore) findOne(ctx context.Context, op string, filter bson.M) (*models.RefreshToken, error) {
	var doc refreshDoc
	if err := s.tokens.FindOne(ctx, filter).Decode(&doc); err != nil {
		return nil, mapErr(op, err)
	}

	t, err := doc.model()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return t, nil
}

// RefreshTokenByUser находит запись пользователя.
func (s *TokenStore) RefreshTokenByUser(ctx context.Context, userID uuid.UUID) (*models.RefreshToken, error) {
	return s.findOne(ctx, "storage.mongo.RefreshTokenByUser", bson.M{"user_id": userID.String()})
}

// RefreshTokenByHash находит запись по хэшу.
func (s *TokenStore) RefreshTokenByHash(ctx context.Context, hash string) (*models.RefreshToken, error) {
	return s.findOne(ctx, "storage.mongo.RefreshTokenByHash", bson.M{"token_hash": hash})
}

// UpsertRefreshToken создаёт или обновляет на месте запись пользователя.
func (s *TokenStore) UpsertRefreshToken(ctx context.Context, token *models.RefreshToken) (*models.RefreshToken, error) {
	const op = "storage.mongo.UpsertRefreshToken"

	id := token.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	now := time.Now().UTC()

	update := bson.M{
		"$set": bson.M{
			"token_hash": token.TokenHash,
			"expires_at": token.ExpiresAt.UTC(),
			"updated_at": now,
		},
		"$setOnInsert": bson.M{
			"_id":        id.String(),
			"created_at": now,
		},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var doc refreshDoc
	err := s.tokens.FindOneAndUpdate(ctx, bson.M{"user_id": token.UserID.String()}, update, opts).Decode(&doc)
	if err != nil {
		return nil, mapErr(op, err)
	}

	t, err := doc.model()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return t, nil
}

// RotateRefreshToken атомарно заменяет хэш, если документ всё ещё хранит oldHash.
func (s *TokenStore) RotateRefreshToken(ctx context.Context, oldHash string, next *models.RefreshToken) (*models.RefreshToken, error) {
	const op = "storage.mongo.RotateRefreshToken"

	update := bson.M{
		"$set": bson.M{
			"token_hash": next.TokenHash,
			"expires_at": next.ExpiresAt.UTC(),
			"updated_at": time.Now().UTC(),
		},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc refreshDoc
	err := s.tokens.FindOneAndUpdate(ctx, bson.M{"token_hash": oldHash}, update, opts).Decode(&doc)
	if err != nil {
		return nil, mapErr(op, err)
	}

	t, err := doc.model()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return t, nil
}

// DeleteRefreshToken удаляет запись по хэшу.
func (s *TokenStore) DeleteRefreshToken(ctx context.Context, hash string) (bool, error) {
	const op = "storage.mongo.DeleteRefreshToken"

	res, err := s.tokens.DeleteOne(ctx, bson.M{"token_hash": hash})
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return res.DeletedCount > 0, nil
}

// DeleteUserRefreshToken удаляет запись пользователя.
func (s *TokenStore) DeleteUserRefreshToken(ctx context.Context, userID uuid.UUID) error {
	const op = "storage.mongo.DeleteUserRefreshToken"

	if _, err := s.tokens.DeleteOne(ctx, bson.M{"user_id": userID.String()}); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// DeleteExpiredTokens удаляет просроченные записи.
// TTL-индекс делает то же самое в фоне, но с задержкой до минуты.
func (s *TokenStore) DeleteExpiredTokens(ctx context.Context, now time.Time) (int64, error) {
	const op = "storage.mongo.DeleteExpiredTokens"

	res, err := s.tokens.DeleteMany(ctx, bson.M{"expires_at": bson.M{"$lte": now.UTC()}})
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return res.DeletedCount, nil
}

var _ storage.RefreshTokenStorage = (*TokenStore)(nil)
