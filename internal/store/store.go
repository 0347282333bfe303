// Package store persists the few values bridges-forms keeps between runs:
// the short-lived sign-in checkpoint, the cached identity account and the
// launch history stream. Everything lives in an embedded NATS JetStream
// server under the configured data directory.
package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// Bucket names and lifetimes.
const (
	SessionBucket  = "bridges_session"
	AccountsBucket = "bridges_accounts"

	// SessionTTL bounds how long a sign-in checkpoint survives an abandoned
	// redirect before it expires on its own.
	SessionTTL = 15 * time.Minute
)

// Store owns the embedded server, its connection and the opened buckets.
type Store struct {
	ns *server.Server
	nc *nats.Conn
	js jetstream.JetStream

	// Session holds values that must survive a sign-in restart only.
	Session *KV
	// Accounts holds the identity cache.
	Accounts *KV
}

// Open starts the embedded server in dataDir and opens both buckets.
func Open(ctx context.Context, dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	ns, err := StartEmbeddedNATS(dataDir)
	if err != nil {
		return nil, fmt.Errorf("starting store: %w", err)
	}

	nc, err := ConnectInProcess(ns)
	if err != nil {
		ns.Shutdown()
		return nil, fmt.Errorf("connecting to store: %w", err)
	}

	js, err := CreateJetStream(nc)
	if err != nil {
		_ = Shutdown(nc, ns)
		return nil, fmt.Errorf("creating jetstream context: %w", err)
	}

	s := &Store{ns: ns, nc: nc, js: js}

	if s.Session, err = OpenKV(ctx, js, SessionBucket, SessionTTL); err != nil {
		_ = s.Close()
		return nil, err
	}
	if s.Accounts, err = OpenKV(ctx, js, AccountsBucket, 0); err != nil {
		_ = s.Close()
		return nil, err
	}

	return s, nil
}

// JetStream exposes the JetStream context for stream-backed components.
func (s *Store) JetStream() jetstream.JetStream {
	return s.js
}

// Close shuts down the connection and the embedded server.
func (s *Store) Close() error {
	return Shutdown(s.nc, s.ns)
}

// KV is a string-valued view over a JetStream key-value bucket.
type KV struct {
	kv jetstream.KeyValue
}

// OpenKV creates or updates a file-backed bucket. A zero ttl keeps values forever.
func OpenKV(ctx context.Context, js jetstream.JetStream, bucket string, ttl time.Duration) (*KV, error) {
	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:  bucket,
		TTL:     ttl,
		Storage: jetstream.FileStorage,
		History: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("opening bucket %s: %w", bucket, err)
	}
	return &KV{kv: kv}, nil
}

// Put stores value under key.
func (k *KV) Put(ctx context.Context, key, value string) error {
	if _, err := k.kv.PutString(ctx, key, value); err != nil {
		return fmt.Errorf("storing %s: %w", key, err)
	}
	return nil
}

// Get returns the value for key, or "" when it is absent.
func (k *KV) Get(ctx context.Context, key string) (string, error) {
	entry, err := k.kv.Get(ctx, key)
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", key, err)
	}
	return string(entry.Value()), nil
}

// Delete removes key. Deleting a missing key is not an error.
func (k *KV) Delete(ctx context.Context, key string) error {
	if err := k.kv.Delete(ctx, key); err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return fmt.Errorf("deleting %s: %w", key, err)
	}
	return nil
}

// Take returns the value for key and deletes it, so a checkpoint is consumed
// at most once.
func (k *KV) Take(ctx context.Context, key string) (string, error) {
	value, err := k.Get(ctx, key)
	if err != nil || value == "" {
		return value, err
	}
	if err := k.Delete(ctx, key); err != nil {
		return "", err
	}
	return value, nil
}
