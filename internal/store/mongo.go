package store

import (
	"context"
	"errors"

	"github.com/EricMurray-e-m-dev/SecureProctor/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/x/mongo/driver/connstring"
)

const defaultMongoDatabase = "secureproctor"

// MongoStore keeps one document per session with embedded timelines.
// Appends use $push, which is atomic per document.
type MongoStore struct {
	client     *mongo.Client
	candidates *mongo.Collection
	sessions   *mongo.Collection
}

func NewMongoStore(ctx context.Context, uri string) (*MongoStore, error) {
	cs, err := connstring.ParseAndValidate(uri)
	if err != nil {
		return nil, unavailable("parse mongodb uri", err)
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, unavailable("connect to mongodb", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, unavailable("ping mongodb", err)
	}

	name := cs.Database
	if name == "" {
		name = defaultMongoDatabase
	}
	db := client.Database(name)

	sessions := db.Collection("sessions")
	_, err = sessions.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "candidate_id", Value: 1}, {Key: "created_at", Value: 1}},
	})
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, unavailable("create session index", err)
	}

	return &MongoStore{
		client:     client,
		candidates: db.Collection("candidates"),
		sessions:   sessions,
	}, nil
}

func (m *MongoStore) CreateCandidate(ctx context.Context, candidate *models.Candidate) error {
	_, err := m.candidates.InsertOne(ctx, candidate)
	return m.writeErr("create candidate", err)
}

func (m *MongoStore) GetCandidate(ctx context.Context, id string) (*models.Candidate, error) {
	var candidate models.Candidate
	if err := m.candidates.FindOne(ctx, bson.M{"_id": id}).Decode(&candidate); err != nil {
		return nil, m.readErr("get candidate", err)
	}
	return &candidate, nil
}

func (m *MongoStore) ListCandidates(ctx context.Context) ([]*models.Candidate, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := m.candidates.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, unavailable("list candidates", err)
	}

	candidates := make([]*models.Candidate, 0)
	if err := cursor.All(ctx, &candidates); err != nil {
		return nil, unavailable("list candidates", err)
	}
	return candidates, nil
}

func (m *MongoStore) CreateSession(ctx context.Context, session *models.Session) error {
	if _, err := m.GetCandidate(ctx, session.CandidateID); err != nil {
		return err
	}

	doc := session.Clone()
	ensureTimelines(doc)
	_, err := m.sessions.InsertOne(ctx, doc)
	return m.writeErr("create session", err)
}

func (m *MongoStore) GetSession(ctx context.Context, id string) (*models.Session, error) {
	var session models.Session
	if err := m.sessions.FindOne(ctx, bson.M{"_id": id}).Decode(&session); err != nil {
		return nil, m.readErr("get session", err)
	}
	ensureTimelines(&session)
	return &session, nil
}

func (m *MongoStore) ListSessions(ctx context.Context, candidateID string) ([]*models.Session, error) {
	filter := bson.M{}
	if candidateID != "" {
		filter["candidate_id"] = candidateID
	}

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := m.sessions.Find(ctx, filter, opts)
	if err != nil {
		return nil, unavailable("list sessions", err)
	}

	sessions := make([]*models.Session, 0)
	if err := cursor.All(ctx, &sessions); err != nil {
		return nil, unavailable("list sessions", err)
	}
	for _, s := range sessions {
		ensureTimelines(s)
	}
	return sessions, nil
}

func (m *MongoStore) UpdateSession(ctx context.Context, session *models.Session) error {
	result, err := m.sessions.UpdateOne(ctx, bson.M{"_id": session.ID}, headUpdate(session))
	if err != nil {
		return unavailable("update session", err)
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// Commit is a single UpdateOne, so the pushes and the head change land
// together on the one session document.
func (m *MongoStore) Commit(ctx context.Context, session *models.Session, violations []models.Violation, entries []models.DetectionLogEntry) error {
	update := headUpdate(session)

	push := bson.M{}
	if len(violations) > 0 {
		push["violations"] = bson.M{"$each": violations}
	}
	if len(entries) > 0 {
		push["detection_logs"] = bson.M{"$each": entries}
	}
	if len(push) > 0 {
		update["$push"] = push
	}

	result, err := m.sessions.UpdateOne(ctx, bson.M{"_id": session.ID}, update)
	if err != nil {
		return unavailable("commit session", err)
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func headUpdate(session *models.Session) bson.M {
	set := bson.M{
		"status":           session.Status,
		"duration_seconds": session.DurationSeconds,
		"integrity_score":  session.IntegrityScore,
	}
	unset := bson.M{}

	if session.StartTime != nil {
		set["start_time"] = *session.StartTime
	} else {
		unset["start_time"] = ""
	}
	if session.EndTime != nil {
		set["end_time"] = *session.EndTime
	} else {
		unset["end_time"] = ""
	}

	update := bson.M{"$set": set}
	if len(unset) > 0 {
		update["$unset"] = unset
	}
	return update
}

func (m *MongoStore) AddViolation(ctx context.Context, sessionID string, violation models.Violation) error {
	return m.push(ctx, sessionID, "violations", violation, "add violation")
}

func (m *MongoStore) AddDetectionLog(ctx context.Context, sessionID string, entry models.DetectionLogEntry) error {
	return m.push(ctx, sessionID, "detection_logs", entry, "add detection log")
}

func (m *MongoStore) push(ctx context.Context, sessionID string, field string, value any, op string) error {
	result, err := m.sessions.UpdateOne(ctx,
		bson.M{"_id": sessionID},
		bson.M{"$push": bson.M{field: value}},
	)
	if err != nil {
		return unavailable(op, err)
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *MongoStore) Clear(ctx context.Context) error {
	if _, err := m.sessions.DeleteMany(ctx, bson.M{}); err != nil {
		return unavailable("clear sessions", err)
	}
	if _, err := m.candidates.DeleteMany(ctx, bson.M{}); err != nil {
		return unavailable("clear candidates", err)
	}
	return nil
}

func (m *MongoStore) Ping(ctx context.Context) error {
	if err := m.client.Ping(ctx, nil); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

func (m *MongoStore) Close() error {
	return m.client.Disconnect(context.Background())
}

func (m *MongoStore) readErr(op string, err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ErrNotFound
	}
	return unavailable(op, err)
}

func (m *MongoStore) writeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if mongo.IsDuplicateKeyError(err) {
		return ErrAlreadyExists
	}
	return unavailable(op, err)
}
