package persist

import (
	"bufio"
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"golang.org/x/crypto/argon2"

	"github.com/orneryd/matrixgraph/pkg/metrics"
	"github.com/orneryd/matrixgraph/pkg/storage"
)

// Store errors.
var (
	ErrStorageClosed = errors.New("store is closed")
	ErrGraphNotFound = errors.New("graph not found")
)

const (
	keyPrefix = "graph/"
	saltFile  = "db.salt"
	saltSize  = 32
)

// Options configures a Store.
type Options struct {
	// Dir is the badger data directory. Ignored when InMemory is set.
	Dir string

	InMemory   bool
	SyncWrites bool

	// EncryptionPassword enables encryption at rest. The key is derived with
	// argon2id from the password and a per-database salt kept in Dir.
	EncryptionPassword string

	// EntitiesPerKey bounds the entities per virtual key. Defaults to DefaultEntitiesPerKey.
	EntitiesPerKey uint64

	Logger *slog.Logger
}

// Store keeps graph snapshots in BadgerDB, one badger key per virtual key:
//
//	graph/<name>/<key index, zero padded>
type Store struct {
	mu     sync.RWMutex
	db     *badger.DB
	closed bool

	perKey uint64
	logger *slog.Logger
}

// Open opens (or creates) a snapshot store.
func Open(opts Options) (*Store, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	bopts := badger.DefaultOptions(opts.Dir)
	if opts.InMemory {
		bopts = bopts.WithInMemory(true).WithDir("").WithValueDir("")
	}
	if opts.SyncWrites {
		bopts = bopts.WithSyncWrites(true)
	}
	bopts = bopts.WithLogger(badgerLogger{logger.With("component", "badger")}).
		WithMemTableSize(64 << 20).
		WithValueLogFileSize(128 << 20).
		WithNumMemtables(3).
		WithValueThreshold(64 << 10).
		WithBlockCacheSize(64 << 20).
		WithIndexCacheSize(32 << 20)

	if opts.EncryptionPassword != "" {
		key, err := deriveKey(opts)
		if err != nil {
			return nil, err
		}
		bopts = bopts.WithEncryptionKey(key)
	}

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}

	perKey := opts.EntitiesPerKey
	if perKey == 0 {
		perKey = DefaultEntitiesPerKey
	}
	return &Store{db: db, perKey: perKey, logger: logger}, nil
}

// deriveKey returns a 32-byte AES key. On disk the salt is loaded from, or
// generated into, Dir/db.salt.
func deriveKey(opts Options) ([]byte, error) {
	salt := make([]byte, saltSize)
	if opts.InMemory {
		if _, err := rand.Read(salt); err != nil {
			return nil, fmt.Errorf("failed to generate encryption salt: %w", err)
		}
	} else {
		path := filepath.Join(opts.Dir, saltFile)
		if existing, err := os.ReadFile(path); err == nil && len(existing) == saltSize {
			salt = existing
		} else {
			if _, err := rand.Read(salt); err != nil {
				return nil, fmt.Errorf("failed to generate encryption salt: %w", err)
			}
			if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create data directory: %w", err)
			}
			if err := os.WriteFile(path, salt, 0o600); err != nil {
				return nil, fmt.Errorf("failed to save encryption salt: %w", err)
			}
		}
	}
	return argon2.IDKey([]byte(opts.EncryptionPassword), salt, 1, 64*1024, 4, 32), nil
}

func graphPrefix(name string) []byte { return []byte(keyPrefix + name + "/") }

func graphKey(name string, i int) []byte {
	return fmt.Appendf(nil, "%s%s/%08d", keyPrefix, name, i)
}

func (s *Store) ensureOpen() error {
	if s.closed {
		return ErrStorageClosed
	}
	return nil
}

// Save encodes g and replaces any stored snapshot of the same name in a
// single transaction. Takes the graph read lock while encoding.
func (s *Store) Save(ctx context.Context, g *storage.Graph) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.ensureOpen(); err != nil {
		return err
	}
	if g.Name() == "" || strings.Contains(g.Name(), "/") {
		return fmt.Errorf("invalid graph name %q", g.Name())
	}

	var keys [][]byte
	err := g.View(func() error {
		var err error
		keys, err = Encode(g, s.perKey)
		return err
	})
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	size := 0
	err = s.db.Update(func(txn *badger.Txn) error {
		if err := deletePrefix(txn, graphPrefix(g.Name())); err != nil {
			return err
		}
		for i, k := range keys {
			if err := txn.Set(graphKey(g.Name(), i), k); err != nil {
				return err
			}
			size += len(k)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("saving graph %s: %w", g.Name(), err)
	}

	metrics.SnapshotBytes.WithLabelValues(g.Name()).Set(float64(size))
	s.logger.Debug("graph saved", "graph", g.Name(), "keys", len(keys), "bytes", size)
	return nil
}

// Load decodes the snapshot stored under name.
func (s *Store) Load(ctx context.Context, name string) (*storage.Graph, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}

	var keys [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = graphPrefix(name)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			v, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			keys = append(keys, v)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("loading graph %s: %w", name, err)
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("%s: %w", name, ErrGraphNotFound)
	}

	g, err := Decode(keys)
	if err != nil {
		return nil, fmt.Errorf("decoding graph %s: %w", name, err)
	}
	s.logger.Debug("graph loaded", "graph", name, "keys", len(keys),
		"nodes", g.NodeCount(), "edges", g.EdgeCount())
	return g, nil
}

// List returns the names of the stored graphs in key order.
func (s *Store) List() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}

	var names []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			k := bytes.TrimPrefix(it.Item().Key(), []byte(keyPrefix))
			i := bytes.LastIndexByte(k, '/')
			if i < 0 {
				continue
			}
			name := string(k[:i])
			if len(names) == 0 || names[len(names)-1] != name {
				names = append(names, name)
			}
		}
		return nil
	})
	return names, err
}

// Delete removes the snapshot stored under name.
func (s *Store) Delete(name string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.ensureOpen(); err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		prefix := graphPrefix(name)
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix})
		it.Rewind()
		found := it.Valid()
		it.Close()
		if !found {
			return fmt.Errorf("%s: %w", name, ErrGraphNotFound)
		}
		return deletePrefix(txn, prefix)
	})
}

func deletePrefix(txn *badger.Txn, prefix []byte) error {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	var keys [][]byte
	for it.Rewind(); it.Valid(); it.Next() {
		keys = append(keys, it.Item().KeyCopy(nil))
	}
	it.Close()

	for _, k := range keys {
		if err := txn.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

// Backup writes a full badger backup of the store to path.
func (s *Store) Backup(path string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.ensureOpen(); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create backup file: %w", err)
	}
	defer f.Close()

	buf := bufio.NewWriterSize(f, 16<<20)
	if _, err := s.db.Backup(buf, 0); err != nil {
		return fmt.Errorf("backup failed: %w", err)
	}
	if err := buf.Flush(); err != nil {
		return fmt.Errorf("failed to flush backup: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("failed to sync backup: %w", err)
	}
	return nil
}

// Restore loads a backup written by Backup into the store.
func (s *Store) Restore(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureOpen(); err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open backup file: %w", err)
	}
	defer f.Close()
	if err := s.db.Load(bufio.NewReaderSize(f, 16<<20), 256); err != nil {
		return fmt.Errorf("restore failed: %w", err)
	}
	return nil
}

// Close closes the store. Closing twice is a no-op.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// badgerLogger routes badger's printf logging into slog. Info and debug
// output is demoted to debug.
type badgerLogger struct {
	l *slog.Logger
}

func (b badgerLogger) Errorf(f string, args ...any) { b.l.Error(trimf(f, args)) }
func (b badgerLogger) Warningf(f string, args ...any) { b.l.Warn(trimf(f, args)) }
func (b badgerLogger) Infof(f string, args ...any) { b.l.Debug(trimf(f, args)) }
func (b badgerLogger) Debugf(f string, args ...any) { b.l.Debug(trimf(f, args)) }

func trimf(f string, args []any) string {
	return strings.TrimRight(fmt.Sprintf(f, args...), "\n")
}
