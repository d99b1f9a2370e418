package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/example/campusmesh-dm/domain/dm"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// JetStream is a Store backed by a NATS JetStream key/value bucket.
// Path separators are mapped onto NATS subject tokens.
type JetStream struct {
	conn   *nats.Conn
	js     jetstream.JetStream
	bucket jetstream.KeyValue
}

var _ Store = (*JetStream)(nil)

// NewJetStream connects to NATS and opens (or creates) the bucket.
func NewJetStream(ctx context.Context, natsURL, bucket string) (*JetStream, error) {
	conn, err := nats.Connect(natsURL, nats.Name("campusmesh-dm"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	s := &JetStream{conn: conn, js: js}
	kv, err := s.getOrCreateBucket(ctx, bucket, "Direct messaging state")
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open %s bucket: %w", bucket, err)
	}
	s.bucket = kv

	return s, nil
}

func (s *JetStream) getOrCreateBucket(ctx context.Context, name, description string) (jetstream.KeyValue, error) {
	bucket, err := s.js.KeyValue(ctx, name)
	if err == nil {
		return bucket, nil
	}

	return s.js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      name,
		Description: description,
	})
}

// Backend returns the backend name.
func (s *JetStream) Backend() string { return "jetstream" }

// Ping reports whether the NATS connection is up.
func (s *JetStream) Ping(context.Context) error {
	if s.conn == nil || !s.conn.IsConnected() {
		return fmt.Errorf("%w: nats connection is %s", dm.ErrTransientIO, s.status())
	}
	return nil
}

func (s *JetStream) status() string {
	if s.conn == nil {
		return "closed"
	}
	return s.conn.Status().String()
}

// Get returns the value at key.
func (s *JetStream) Get(ctx context.Context, key string) ([]byte, error) {
	entry, err := s.bucket.Get(ctx, toSubject(key))
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, ErrKeyNotFound
		}
		return nil, transient("get", key, err)
	}
	return entry.Value(), nil
}

// Put writes value at key.
func (s *JetStream) Put(ctx context.Context, key string, value []byte) error {
	if _, err := s.bucket.Put(ctx, toSubject(key), value); err != nil {
		return transient("put", key, err)
	}
	return nil
}

// Create writes value only when key is absent.
func (s *JetStream) Create(ctx context.Context, key string, value []byte) error {
	if _, err := s.bucket.Create(ctx, toSubject(key), value); err != nil {
		if errors.Is(err, jetstream.ErrKeyExists) {
			return ErrKeyExists
		}
		return transient("create", key, err)
	}
	return nil
}

// Delete removes key and every key below it.
func (s *JetStream) Delete(ctx context.Context, key string) error {
	children, err := s.List(ctx, key)
	if err != nil {
		return err
	}
	for _, e := range children {
		if err := s.deleteOne(ctx, e.Key); err != nil {
			return err
		}
	}
	return s.deleteOne(ctx, key)
}

func (s *JetStream) deleteOne(ctx context.Context, key string) error {
	if err := s.bucket.Delete(ctx, toSubject(key)); err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return transient("delete", key, err)
	}
	return nil
}

// List returns the live descendants of prefix ordered by key. It reads
// the initial values of a watch and stops at the end-of-snapshot marker.
func (s *JetStream) List(ctx context.Context, prefix string) ([]Entry, error) {
	w, err := s.bucket.Watch(ctx, watchFilter(prefix), jetstream.IgnoreDeletes())
	if err != nil {
		return nil, transient("list", prefix, err)
	}
	defer w.Stop()

	var entries []Entry
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case entry, ok := <-w.Updates():
			if !ok {
				return nil, transient("list", prefix, errors.New("watcher closed"))
			}
			if entry == nil {
				sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
				return entries, nil
			}
			entries = append(entries, Entry{Key: fromSubject(entry.Key()), Value: entry.Value()})
		}
	}
}

// Watch streams changes below prefix until ctx is done.
func (s *JetStream) Watch(ctx context.Context, prefix string) (<-chan Event, error) {
	w, err := s.bucket.Watch(ctx, watchFilter(prefix), jetstream.UpdatesOnly())
	if err != nil {
		return nil, transient("watch", prefix, err)
	}

	out := make(chan Event, watchBuffer)
	go func() {
		defer close(out)
		defer func() { _ = w.Stop() }()

		for {
			select {
			case <-ctx.Done():
				return
			case entry, ok := <-w.Updates():
				if !ok {
					return
				}
				if entry == nil {
					continue
				}
				ev := Event{Op: OpPut, Key: fromSubject(entry.Key()), Value: entry.Value()}
				if entry.Operation() != jetstream.KeyValuePut {
					ev.Op = OpDelete
					ev.Value = nil
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// Close closes the NATS connection.
func (s *JetStream) Close() error {
	if s.conn != nil {
		s.conn.Close()
	}
	return nil
}

func toSubject(key string) string {
	return strings.ReplaceAll(key, PathSeparator, ".")
}

func fromSubject(subject string) string {
	return strings.ReplaceAll(subject, ".", PathSeparator)
}

func watchFilter(prefix string) string {
	if prefix == "" {
		return ">"
	}
	return toSubject(prefix) + ".>"
}

func transient(op, key string, err error) error {
	return fmt.Errorf("%w: %s %s: %v", dm.ErrTransientIO, op, key, err)
}
