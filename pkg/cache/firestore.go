package cache

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/illmade-knight/go-hostwatch/pkg/measurement"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreSnapshotCache stores one document per kind/subject pair. It suits
// deployments that already run on Google Cloud without a Redis instance.
type FirestoreSnapshotCache struct {
	client     *firestore.Client
	collection string
}

// NewFirestoreSnapshotCache creates a new FirestoreSnapshotCache.
func NewFirestoreSnapshotCache(client *firestore.Client, collectionName string) (*FirestoreSnapshotCache, error) {
	if client == nil {
		return nil, errors.New("firestore client cannot be nil")
	}
	if collectionName == "" {
		return nil, errors.New("firestore collection name is required")
	}
	return &FirestoreSnapshotCache{
		client:     client,
		collection: collectionName,
	}, nil
}

// snapshotDoc is the stored document. Body is kept as a JSON string so the
// document stays readable in the console.
type snapshotDoc struct {
	Kind       string    `firestore:"kind"`
	Subject    string    `firestore:"subject"`
	ObservedAt time.Time `firestore:"observedAt"`
	ReceivedAt time.Time `firestore:"receivedAt"`
	Body       string    `firestore:"body"`
}

func toDoc(s measurement.Snapshot) snapshotDoc {
	return snapshotDoc{
		Kind:       string(s.Kind),
		Subject:    s.Subject,
		ObservedAt: s.ObservedAt,
		ReceivedAt: s.ReceivedAt,
		Body:       string(s.Body),
	}
}

func fromDoc(d snapshotDoc) measurement.Snapshot {
	return measurement.Snapshot{
		Kind:       measurement.Kind(d.Kind),
		Subject:    d.Subject,
		ObservedAt: d.ObservedAt,
		ReceivedAt: d.ReceivedAt,
		Body:       []byte(d.Body),
	}
}

// docID escapes the "/" of snapshot keys, which Firestore reserves as a path
// separator.
func docID(key string) string {
	return url.PathEscape(key)
}

// Set creates or overwrites the snapshot document.
func (c *FirestoreSnapshotCache) Set(ctx context.Context, s measurement.Snapshot) error {
	key := s.Key()
	if _, err := c.client.Collection(c.collection).Doc(docID(key)).Set(ctx, toDoc(s)); err != nil {
		return fmt.Errorf("failed to set snapshot in firestore for key %s: %w", key, err)
	}
	return nil
}

// Fetch retrieves a snapshot document.
func (c *FirestoreSnapshotCache) Fetch(ctx context.Context, key string) (measurement.Snapshot, error) {
	docSnap, err := c.client.Collection(c.collection).Doc(docID(key)).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return measurement.Snapshot{}, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return measurement.Snapshot{}, fmt.Errorf("firestore get failed for key %s: %w", key, err)
	}
	var d snapshotDoc
	if err := docSnap.DataTo(&d); err != nil {
		return measurement.Snapshot{}, fmt.Errorf("failed to decode snapshot for key %s: %w", key, err)
	}
	return fromDoc(d), nil
}

// List queries the documents of kind ordered by subject.
func (c *FirestoreSnapshotCache) List(ctx context.Context, kind measurement.Kind) ([]measurement.Snapshot, error) {
	docs, err := c.client.Collection(c.collection).
		Where("kind", "==", string(kind)).
		OrderBy("subject", firestore.Asc).
		Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("firestore query failed for kind %s: %w", kind, err)
	}
	out := make([]measurement.Snapshot, 0, len(docs))
	for _, doc := range docs {
		var d snapshotDoc
		if err := doc.DataTo(&d); err != nil {
			return nil, fmt.Errorf("failed to decode snapshot %s: %w", doc.Ref.ID, err)
		}
		out = append(out, fromDoc(d))
	}
	return out, nil
}

// Delete removes the snapshot document.
func (c *FirestoreSnapshotCache) Delete(ctx context.Context, key string) error {
	_, err := c.client.Collection(c.collection).Doc(docID(key)).Delete(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil
		}
		return fmt.Errorf("firestore delete failed for key %s: %w", key, err)
	}
	return nil
}

// Close is a no-op as the Firestore client's lifecycle is managed externally.
func (c *FirestoreSnapshotCache) Close() error {
	return nil
}
