package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"nurseconnect-quiz-service/internal/app"
	"nurseconnect-quiz-service/internal/domain"
)

const collectionName = "quiz_matches"

var _ app.MatchArchive = (*MatchArchive)(nil)

type matchDocument struct {
	ID        string       `bson:"_id"`
	PlayerIDs []string     `bson:"playerIds"`
	Course    string       `bson:"course"`
	WinnerID  string       `bson:"winnerId,omitempty"`
	Draw      bool         `bson:"draw"`
	EndedAt   time.Time    `bson:"endedAt"`
	Match     domain.Match `bson:"match"`
}

// MatchArchive keeps completed matches in MongoDB, one document per match.
type MatchArchive struct {
	collection *mongo.Collection
}

func NewMatchArchive(client *mongo.Client, database string) *MatchArchive {
	return &MatchArchive{collection: client.Database(database).Collection(collectionName)}
}

// EnsureIndexes creates the per-player history index.
func (a *MatchArchive) EnsureIndexes(ctx context.Context) error {
	_, err := a.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "playerIds", Value: 1}, {Key: "endedAt", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("create archive index: %w", err)
	}
	return nil
}

// Save upserts by match id, so re-archiving a match is harmless.
func (a *MatchArchive) Save(ctx context.Context, m domain.Match) error {
	doc := matchDocument{
		ID:       m.ID,
		Course:   m.Course,
		WinnerID: m.WinnerID,
		Draw:     m.Draw,
		EndedAt:  m.EndedAt,
		Match:    m,
	}
	for _, p := range m.Participants {
		doc.PlayerIDs = append(doc.PlayerIDs, p.PlayerID)
	}
	_, err := a.collection.ReplaceOne(ctx, bson.M{"_id": m.ID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("archive match %s: %w", m.ID, err)
	}
	return nil
}

func (a *MatchArchive) ListByPlayer(ctx context.Context, playerID string, limit int) ([]domain.Match, error) {
	opts := options.Find().SetSort(bson.D{{Key: "endedAt", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cursor, err := a.collection.Find(ctx, bson.M{"playerIds": playerID}, opts)
	if err != nil {
		return nil, fmt.Errorf("list matches: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []matchDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode matches: %w", err)
	}
	out := make([]domain.Match, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.Match)
	}
	return out, nil
}
