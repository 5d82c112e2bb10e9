package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// NATSStore is the production KV backend: a JetStream key-value bucket.
// Revision-guarded updates give the conditional write the upsert relies on.
type NATSStore struct {
	conn   *nats.Conn
	kv     jetstream.KeyValue
	bucket string
}

// NewNATSStore connects to NATS and opens (or creates) the catalog bucket.
// The bucket keeps only the latest revision of each key; history is the
// build log's job, not the catalog's.
func NewNATSStore(url, bucket string) (*NATSStore, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	kv, err := js.KeyValue(ctx, bucket)
	if err != nil {
		kv, err = js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
			Bucket:      bucket,
			Description: "Component catalog entities",
			History:     1,
		})
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("create KV bucket %s: %w", bucket, err)
		}
		slog.Info("Created catalog KV bucket", "bucket", bucket)
	}

	return &NATSStore{conn: conn, kv: kv, bucket: bucket}, nil
}

func (s *NATSStore) Get(ctx context.Context, key string) (Entry, error) {
	entry, err := s.kv.Get(ctx, key)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return Entry{}, ErrKeyNotFound
		}
		return Entry{}, err
	}
	return Entry{Value: entry.Value(), Revision: entry.Revision()}, nil
}

func (s *NATSStore) Create(ctx context.Context, key string, value []byte) (uint64, error) {
	rev, err := s.kv.Create(ctx, key, value)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyExists) {
			return 0, ErrConflict
		}
		return 0, err
	}
	return rev, nil
}

func (s *NATSStore) Update(ctx context.Context, key string, value []byte, rev uint64) (uint64, error) {
	newRev, err := s.kv.Update(ctx, key, value, rev)
	if err != nil {
		if isWrongRevision(err) {
			return 0, ErrConflict
		}
		return 0, err
	}
	return newRev, nil
}

func (s *NATSStore) Put(ctx context.Context, key string, value []byte) (uint64, error) {
	return s.kv.Put(ctx, key, value)
}

// Close closes the underlying NATS connection.
func (s *NATSStore) Close() error {
	if s.conn != nil {
		s.conn.Close()
	}
	return nil
}

// isWrongRevision detects the JetStream wrong-last-sequence rejection that
// signals a lost compare-and-swap.
func isWrongRevision(err error) bool {
	var apiErr *jetstream.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode == jetstream.JSErrCodeStreamWrongLastSequence
	}
	return errors.Is(err, jetstream.ErrKeyExists)
}
