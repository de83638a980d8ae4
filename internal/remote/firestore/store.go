// Package firestore keeps a remote copy of each challenge in Cloud
// Firestore, one document per sync code.
package firestore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"envelopes/internal/core"
	"envelopes/internal/store"
)

// DefaultCollection holds one document per sync code.
const DefaultCollection = "savings_states"

type (
	envelopeDoc struct {
		ID        int        `firestore:"id"`
		Amount    int64      `firestore:"amount"`
		IsOpen    bool       `firestore:"isOpen"`
		OpenedAt  *time.Time `firestore:"openedAt,omitempty"`
		DayNumber int        `firestore:"dayNumber,omitempty"`
	}

	// document is the stored shape. _lastUpdated is written by the server
	// and never copied back into the challenge.
	document struct {
		TargetAmount         int64         `firestore:"targetAmount"`
		Days                 int           `firestore:"days"`
		Currency             string        `firestore:"currency"`
		Distribution         string        `firestore:"distribution,omitempty"`
		StartDate            time.Time     `firestore:"startDate"`
		Envelopes            []envelopeDoc `firestore:"envelopes"`
		UnlockedAchievements []string      `firestore:"unlockedAchievements"`
		LastUpdated          time.Time     `firestore:"_lastUpdated,serverTimestamp"`
	}
)

type Store struct {
	client     *firestore.Client
	collection string
}

var (
	_ store.ChallengeStore = (*Store)(nil)
	_ store.CodeLister     = (*Store)(nil)
)

// New wraps an existing client. An empty collection means DefaultCollection.
func New(client *firestore.Client, collection string) *Store {
	if collection == "" {
		collection = DefaultCollection
	}
	return &Store{client: client, collection: collection}
}

// Open creates a Firestore client for projectID. FIRESTORE_EMULATOR_HOST
// is honored by the client library.
func Open(ctx context.Context, projectID, collection string) (*Store, error) {
	if projectID == "" {
		return nil, errors.New("firestore: missing project id")
	}
	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("firestore client: %w", err)
	}
	return New(client, collection), nil
}

// EmulatorConfigured reports whether the client will talk to an emulator.
func EmulatorConfigured() bool {
	return os.Getenv("FIRESTORE_EMULATOR_HOST") != ""
}

func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) doc(code string) *firestore.DocumentRef {
	return s.client.Collection(s.collection).Doc(code)
}

// Save overwrites the document for code.
func (s *Store) Save(ctx context.Context, code string, c *core.Challenge) error {
	if c == nil {
		return fmt.Errorf("save %s: nil challenge", code)
	}
	if _, err := s.doc(code).Set(ctx, toDocument(c)); err != nil {
		return fmt.Errorf("firestore set %s: %w", code, err)
	}
	return nil
}

// Load reads the document for code.
func (s *Store) Load(ctx context.Context, code string) (*core.Challenge, error) {
	snap, err := s.doc(code).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, fmt.Errorf("load %s: %w", code, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("firestore get %s: %w", code, err)
	}
	var d document
	if err := snap.DataTo(&d); err != nil {
		return nil, fmt.Errorf("decode %s: %w", code, err)
	}
	c := fromDocument(d)
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("load %s: %w", code, err)
	}
	return c, nil
}

// Delete removes the document. Missing documents are not an error.
func (s *Store) Delete(ctx context.Context, code string) error {
	if _, err := s.doc(code).Delete(ctx); err != nil && status.Code(err) != codes.NotFound {
		return fmt.Errorf("firestore delete %s: %w", code, err)
	}
	return nil
}

// Codes lists every document id in the collection.
func (s *Store) Codes(ctx context.Context) ([]string, error) {
	iter := s.client.Collection(s.collection).DocumentRefs(ctx)
	var codes []string
	for {
		ref, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", s.collection, err)
		}
		codes = append(codes, ref.ID)
	}
	return codes, nil
}

func toDocument(c *core.Challenge) document {
	d := document{
		TargetAmount:         c.TargetAmount,
		Days:                 c.Days,
		Currency:             c.Currency,
		Distribution:         string(c.Distribution),
		StartDate:            c.StartDate.UTC(),
		Envelopes:            make([]envelopeDoc, len(c.Envelopes)),
		UnlockedAchievements: append([]string{}, c.UnlockedAchievements...),
	}
	for i, e := range c.Envelopes {
		ed := envelopeDoc{ID: e.ID, Amount: e.Amount, IsOpen: e.IsOpen, DayNumber: e.DayNumber}
		if e.OpenedAt != nil {
			t := e.OpenedAt.UTC()
			ed.OpenedAt = &t
		}
		d.Envelopes[i] = ed
	}
	return d
}

func fromDocument(d document) *core.Challenge {
	c := &core.Challenge{
		TargetAmount:         d.TargetAmount,
		Days:                 d.Days,
		Currency:             d.Currency,
		Distribution:         core.Distribution(d.Distribution),
		StartDate:            d.StartDate.UTC(),
		Envelopes:            make([]core.Envelope, len(d.Envelopes)),
		UnlockedAchievements: append([]string{}, d.UnlockedAchievements...),
	}
	for i, ed := range d.Envelopes {
		e := core.Envelope{ID: ed.ID, Amount: ed.Amount, IsOpen: ed.IsOpen, DayNumber: ed.DayNumber}
		if ed.OpenedAt != nil {
			t := ed.OpenedAt.UTC()
			e.OpenedAt = &t
		}
		c.Envelopes[i] = e
	}
	return c
}
