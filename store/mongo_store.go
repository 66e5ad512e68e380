package store

import (
	"context"
	"errors"
	"fmt"
	"log"

	"places-server/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
)

// codeWriteConflict is the server error code for a transaction write conflict.
const codeWriteConflict = 112

const labelUnknownCommitResult = "UnknownTransactionCommitResult"

type MongoStore struct {
	client *mongo.Client
	places *mongo.Collection
	users  *mongo.Collection
}

// NewMongoStore connects to uri, checks the connection and makes sure the
// indexes the store relies on exist. Transactions need a replica set.
func NewMongoStore(ctx context.Context, uri, database string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	log.Println("Connected to MongoDB")

	db := client.Database(database)
	s := &MongoStore{
		client: client,
		places: db.Collection("places"),
		users:  db.Collection("users"),
	}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return s, nil
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	_, err := s.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("create unique index on users.email: %w", err)
	}
	_, err = s.places.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "creator", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("create index on places.creator: %w", err)
	}
	return nil
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) FindPlace(ctx context.Context, placeID string) (models.Place, error) {
	var place models.Place
	err := s.places.FindOne(ctx, bson.M{"_id": placeID}).Decode(&place)
	if err != nil {
		return models.Place{}, mapMongoError(err)
	}
	return place, nil
}

func (s *MongoStore) FindPlacesByCreator(ctx context.Context, userID string) ([]models.Place, error) {
	cursor, err := s.places.Find(ctx, bson.M{"creator": userID})
	if err != nil {
		return nil, mapMongoError(err)
	}
	defer cursor.Close(ctx)
	places := []models.Place{}
	if err := cursor.All(ctx, &places); err != nil {
		return nil, mapMongoError(err)
	}
	return places, nil
}

func (s *MongoStore) ReplacePlace(ctx context.Context, place models.Place) error {
	res, err := s.places.ReplaceOne(ctx, bson.M{"_id": place.ID}, place)
	if err != nil {
		return mapMongoError(err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) FindUser(ctx context.Context, userID string) (models.User, error) {
	var user models.User
	err := s.users.FindOne(ctx, bson.M{"_id": userID}).Decode(&user)
	if err != nil {
		return models.User{}, mapMongoError(err)
	}
	return user, nil
}

func (s *MongoStore) FindUserByEmail(ctx context.Context, email string) (models.User, error) {
	var user models.User
	err := s.users.FindOne(ctx, bson.M{"email": email}).Decode(&user)
	if err != nil {
		return models.User{}, mapMongoError(err)
	}
	return user, nil
}

// FindUserWithPlaces resolves the user's places list with a $lookup, the
// aggregation equivalent of populating the reference.
func (s *MongoStore) FindUserWithPlaces(ctx context.Context, userID string) (models.User, []models.Place, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"_id": userID}}},
		{{Key: "$lookup", Value: bson.M{
			"from":         s.places.Name(),
			"localField":   "places",
			"foreignField": "_id",
			"as":           "place_docs",
		}}},
	}
	cursor, err := s.users.Aggregate(ctx, pipeline)
	if err != nil {
		return models.User{}, nil, mapMongoError(err)
	}
	defer cursor.Close(ctx)

	var rows []struct {
		models.User `bson:",inline"`
		PlaceDocs   []models.Place `bson:"place_docs"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return models.User{}, nil, mapMongoError(err)
	}
	if len(rows) == 0 {
		return models.User{}, nil, ErrNotFound
	}
	return rows[0].User, orderPlaces(rows[0].User.Places, rows[0].PlaceDocs), nil
}

func (s *MongoStore) ListUsers(ctx context.Context) ([]models.User, error) {
	opts := options.Find().SetProjection(bson.M{"password": 0})
	cursor, err := s.users.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, mapMongoError(err)
	}
	defer cursor.Close(ctx)
	users := []models.User{}
	if err := cursor.All(ctx, &users); err != nil {
		return nil, mapMongoError(err)
	}
	return users, nil
}

func (s *MongoStore) InsertUser(ctx context.Context, user models.User) error {
	if user.Places == nil {
		user.Places = []string{}
	}
	_, err := s.users.InsertOne(ctx, user)
	return mapMongoError(err)
}

// Begin starts a session and a snapshot transaction on it.
func (s *MongoStore) Begin(ctx context.Context) (Tx, error) {
	sess, err := s.client.StartSession()
	if err != nil {
		return nil, fmt.Errorf("start session: %w", err)
	}
	txnOpts := options.Transaction().
		SetReadConcern(readconcern.Snapshot()).
		SetWriteConcern(writeconcern.Majority())
	if err := sess.StartTransaction(txnOpts); err != nil {
		sess.EndSession(ctx)
		return nil, fmt.Errorf("start transaction: %w", err)
	}
	return &mongoTx{store: s, sess: sess}, nil
}

type mongoTx struct {
	store *MongoStore
	sess  mongo.Session
	done  bool
}

func (t *mongoTx) sessionContext(ctx context.Context) mongo.SessionContext {
	return mongo.NewSessionContext(ctx, t.sess)
}

func (t *mongoTx) InsertPlace(ctx context.Context, place models.Place) error {
	_, err := t.store.places.InsertOne(t.sessionContext(ctx), place)
	return mapMongoError(err)
}

func (t *mongoTx) DeletePlace(ctx context.Context, placeID string) error {
	res, err := t.store.places.DeleteOne(t.sessionContext(ctx), bson.M{"_id": placeID})
	if err != nil {
		return mapMongoError(err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *mongoTx) ReplaceUserPlaces(ctx context.Context, userID string, places []string, expectedVersion int64) error {
	filter := bson.M{"_id": userID, "version": expectedVersion}
	update := bson.M{
		"$set": bson.M{"places": places},
		"$inc": bson.M{"version": 1},
	}
	res, err := t.store.users.UpdateOne(t.sessionContext(ctx), filter, update)
	if err != nil {
		return mapMongoError(err)
	}
	if res.MatchedCount == 0 {
		return ErrConflict
	}
	return nil
}

func (t *mongoTx) Commit(ctx context.Context) error {
	if t.done {
		return nil
	}
	err := commitWithRetry(ctx, t.sess.CommitTransaction)
	t.done = true
	t.sess.EndSession(context.WithoutCancel(ctx))
	return mapMongoError(err)
}

// commitWithRetry repeats the commit while the server reports that the
// outcome of the previous attempt is unknown. Commit is idempotent on the
// server, so a repeat never applies the writes twice. It stops at the
// context deadline.
func commitWithRetry(ctx context.Context, commit func(context.Context) error) error {
	for {
		err := commit(ctx)
		if err == nil {
			return nil
		}
		var se mongo.ServerError
		if !errors.As(err, &se) || !se.HasErrorLabel(labelUnknownCommitResult) {
			return err
		}
		if ctx.Err() != nil {
			return err
		}
		log.Printf("Commit result unknown, retrying: %v", err)
	}
}

func (t *mongoTx) Abort(ctx context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	err := t.sess.AbortTransaction(ctx)
	t.sess.EndSession(ctx)
	return err
}

func mapMongoError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ErrNotFound
	}
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%w: %v", ErrDuplicateKey, err)
	}
	var se mongo.ServerError
	if errors.As(err, &se) {
		if se.HasErrorCode(codeWriteConflict) || se.HasErrorLabel("TransientTransactionError") {
			return fmt.Errorf("%w: %v", ErrConflict, err)
		}
	}
	return err
}

// orderPlaces returns docs in the order given by ids, skipping ids with no
// matching document.
func orderPlaces(ids []string, docs []models.Place) []models.Place {
	byID := make(map[string]models.Place, len(docs))
	for _, p := range docs {
		byID[p.ID] = p
	}
	ordered := make([]models.Place, 0, len(ids))
	for _, id := range ids {
		if p, ok := byID[id]; ok {
			ordered = append(ordered, p)
		}
	}
	return ordered
}
