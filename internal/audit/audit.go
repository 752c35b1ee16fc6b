// Package audit implements the optional event sink of SPEC_FULL.md
// §11.1: a fan-out of the three recoverable error kinds plus
// oversized-group events to MongoDB, so long batch runs across many
// source files can be audited centrally instead of only in local log
// files. Grounded on app/services/mongo_cache_service.go's collection
// + index setup and its async updateAccessStats fire-and-forget
// write, repurposed from a read/write cache into a write-only sink.
package audit

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// EventKind is one of the recoverable conditions spec §7 names, plus
// the oversized-group condition of spec §4.5.
type EventKind string

const (
	EventInputMalformed      EventKind = "InputMalformed"
	EventDuplicatePrimaryKey EventKind = "DuplicatePrimaryKey"
	EventOversizedGroup      EventKind = "OversizedGroup"
)

// Event is one audited occurrence of a recoverable condition.
type Event struct {
	Kind       EventKind `bson:"kind"`
	Detail     string    `bson:"detail"`
	OccurredAt time.Time `bson:"occurred_at"`
}

// Sink fans recoverable-condition events out to MongoDB. A nil *Sink
// is valid and every method becomes a no-op, so the audit sink can be
// wired in only when a Mongo URI is configured (spec's "optional").
type Sink struct {
	collection *mongo.Collection
	logger     *zap.Logger
}

// New opens the dedup_events collection on db and ensures its
// indexes, mirroring MongoCacheService's index-on-construct pattern.
func New(db *mongo.Database, logger *zap.Logger) (*Sink, error) {
	collection := db.Collection("dedup_events")

	indexModels := []mongo.IndexModel{
		{Keys: bson.D{{Key: "kind", Value: 1}}},
		{Keys: bson.D{{Key: "occurred_at", Value: 1}}},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := collection.Indexes().CreateMany(ctx, indexModels); err != nil {
		logger.Warn("could not create indexes for dedup_events", zap.Error(err))
	}

	return &Sink{collection: collection, logger: logger}, nil
}

// Record fires an event at the sink asynchronously, so a slow or
// unreachable Mongo instance never stalls the pipeline that reports
// it.
func (s *Sink) Record(kind EventKind, detail string) {
	if s == nil || s.collection == nil {
		return
	}

	ev := Event{Kind: kind, Detail: detail, OccurredAt: time.Now()}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if _, err := s.collection.InsertOne(ctx, ev); err != nil {
			s.logger.Warn("failed to record audit event", zap.Error(err), zap.String("kind", string(kind)))
		}
	}()
}

// CountByKind returns how many events of kind have been recorded.
func (s *Sink) CountByKind(ctx context.Context, kind EventKind) (int64, error) {
	if s == nil || s.collection == nil {
		return 0, nil
	}
	return s.collection.CountDocuments(ctx, bson.M{"kind": string(kind)})
}
