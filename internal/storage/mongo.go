package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// Collection names
const (
	CollectionSystemPrompts = "systemPrompts"
	CollectionUsers         = "users"
)

// MongoStore keeps system prompts and users in MongoDB.
type MongoStore struct {
	client   *mongo.Client
	database *mongo.Database
}

var _ Backend = (*MongoStore)(nil)

// promptDoc is the stored shape of a system prompt; ids are ObjectIDs.
type promptDoc struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	Title     string             `bson:"title"`
	Prompt    string             `bson:"prompt"`
	CreatedAt time.Time          `bson:"createdAt,omitempty"`
}

func (d promptDoc) toPrompt() SystemPrompt {
	return SystemPrompt{ID: d.ID.Hex(), Title: d.Title, Prompt: d.Prompt, CreatedAt: d.CreatedAt}
}

// OpenMongo connects to uri, verifies the primary is reachable and selects dbName.
func OpenMongo(ctx context.Context, uri, dbName string) (*MongoStore, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	clientOptions := options.Client().
		ApplyURI(uri).
		SetMaxPoolSize(20).
		SetMaxConnIdleTime(30 * time.Second).
		SetServerSelectionTimeout(5 * time.Second).
		SetConnectTimeout(10 * time.Second)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("connecting to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("pinging MongoDB: %w", err)
	}

	return &MongoStore{client: client, database: client.Database(dbName)}, nil
}

// Ping checks the connection to the primary.
func (m *MongoStore) Ping(ctx context.Context) error {
	return m.client.Ping(ctx, readpref.Primary())
}

// Close disconnects the client.
func (m *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}

// ListSystemPrompts returns every document in the systemPrompts collection.
func (m *MongoStore) ListSystemPrompts(ctx context.Context) ([]SystemPrompt, error) {
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	cursor, err := m.database.Collection(CollectionSystemPrompts).Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("finding system prompts: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []promptDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decoding system prompts: %w", err)
	}

	prompts := make([]SystemPrompt, 0, len(docs))
	for _, d := range docs {
		prompts = append(prompts, d.toPrompt())
	}
	return prompts, nil
}

// CreateSystemPrompt inserts a prompt and returns it with the generated id.
func (m *MongoStore) CreateSystemPrompt(ctx context.Context, title, prompt string) (SystemPrompt, error) {
	doc := promptDoc{
		ID:        primitive.NewObjectID(),
		Title:     title,
		Prompt:    prompt,
		CreatedAt: time.Now().UTC(),
	}
	if _, err := m.database.Collection(CollectionSystemPrompts).InsertOne(ctx, doc); err != nil {
		return SystemPrompt{}, fmt.Errorf("inserting system prompt: %w", err)
	}
	return doc.toPrompt(), nil
}

// GetUser looks up a user document by id.
func (m *MongoStore) GetUser(ctx context.Context, id string) (User, error) {
	var u User
	err := m.database.Collection(CollectionUsers).FindOne(ctx, bson.M{"_id": id}).Decode(&u)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("finding user: %w", err)
	}
	return u, nil
}

// SaveUser upserts a user document.
func (m *MongoStore) SaveUser(ctx context.Context, u User) error {
	if u.ID == "" {
		return errors.New("user id is required")
	}
	u.UpdatedAt = time.Now().UTC()
	_, err := m.database.Collection(CollectionUsers).ReplaceOne(ctx,
		bson.M{"_id": u.ID}, u, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("saving user: %w", err)
	}
	return nil
}
