package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("store")

type badgerStore struct {
	db *badger.DB
}

// Badger opens a persistent store in dir. An empty dir keeps everything in memory.
func Badger(dir string) (Store, error) {
	opts := badger.DefaultOptions(dir).WithLogger(badgerLogger{})
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger at %q: %w", dir, err)
	}
	return &badgerStore{db: db}, nil
}

func (s *badgerStore) Get(ctx context.Context, key string) ([]byte, error) {
	_, span := tracer.Start(ctx, "badger:get")
	defer span.End()
	span.SetAttributes(attribute.String("cache_key", key))

	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to read item from badger")
		return nil, err
	}
	return value, nil
}

func (s *badgerStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	_, span := tracer.Start(ctx, "badger:set")
	defer span.End()
	span.SetAttributes(attribute.String("cache_key", key), attribute.Int64("ttl_seconds", int64(ttl.Seconds())))

	err := s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(key), value)
		if ttl > 0 {
			entry = entry.WithTTL(ttl)
		}
		return txn.SetEntry(entry)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to set badger item")
		return err
	}
	return nil
}

func (s *badgerStore) Delete(ctx context.Context, keys ...string) error {
	_, span := tracer.Start(ctx, "badger:delete")
	defer span.End()
	span.SetAttributes(attribute.Int("keys", len(keys)))

	err := s.db.Update(func(txn *badger.Txn) error {
		for _, key := range keys {
			if err := txn.Delete([]byte(key)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to delete badger items")
		return err
	}
	return nil
}

func (s *badgerStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	_, span := tracer.Start(ctx, "badger:keys")
	defer span.End()
	span.SetAttributes(attribute.String("prefix", prefix))

	var keys []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(opts.Prefix); it.ValidForPrefix(opts.Prefix); it.Next() {
			keys = append(keys, string(it.Item().KeyCopy(nil)))
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to iterate badger keys")
		return nil, err
	}
	return keys, nil
}

func (s *badgerStore) Close() error {
	return s.db.Close()
}

// badgerLogger forwards badger's printf-style logging to slog. Badger is chatty at info level,
// so everything below warning goes to debug.
type badgerLogger struct{}

func (badgerLogger) Errorf(format string, args ...any) {
	slog.Error("badger: " + strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (badgerLogger) Warningf(format string, args ...any) {
	slog.Warn("badger: " + strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (badgerLogger) Infof(format string, args ...any) {
	slog.Debug("badger: " + strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (badgerLogger) Debugf(format string, args ...any) {
	slog.Debug("badger: " + strings.TrimSpace(fmt.Sprintf(format, args...)))
}
