// Package storage persists tree leaves in LevelDB and rebuilds the tree on open.
package storage

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/colorfulnotion/incmerkle/field"
	"github.com/colorfulnotion/incmerkle/log"
	"github.com/colorfulnotion/incmerkle/merkle"
	"github.com/colorfulnotion/incmerkle/merkleerrors"
	"github.com/colorfulnotion/incmerkle/telemetry"
	"github.com/colorfulnotion/incmerkle/treespec"
	"github.com/syndtr/goleveldb/leveldb"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/colorfulnotion/incmerkle/storage"

var (
	metaKey    = []byte("meta")
	countKey   = []byte("count")
	leafPrefix = []byte("leaf/")
)

// leafKey is leafPrefix followed by the big endian index, so leaves iterate in
// insertion order.
func leafKey(index uint64) []byte {
	k := make([]byte, len(leafPrefix)+8)
	copy(k, leafPrefix)
	binary.BigEndian.PutUint64(k[len(leafPrefix):], index)
	return k
}

// TreeStore owns one tree and its LevelDB directory. Every mutation is
// written to disk before it is applied in memory.
type TreeStore struct {
	mu     sync.Mutex
	ps     *PersistenceStore
	spec   *treespec.TreeSpec
	tree   *merkle.Tree
	tracer trace.Tracer
}

// Open loads the tree stored at path, or initialises it from spec when the
// directory is empty. A nil spec accepts whatever is stored. An empty path
// opens an in-memory store.
func Open(path string, spec *treespec.TreeSpec) (*TreeStore, error) {
	ps, err := NewPersistenceStore(path)
	if err != nil {
		return nil, err
	}
	s, err := open(ps, spec)
	if err != nil {
		ps.Close()
		return nil, err
	}
	return s, nil
}

func open(ps *PersistenceStore, spec *treespec.TreeSpec) (*TreeStore, error) {
	stored, err := readMeta(ps)
	if err != nil {
		return nil, err
	}
	switch {
	case stored == nil && spec == nil:
		return nil, merkleerrors.ErrStoreUninitialized
	case stored == nil:
		if err := spec.Validate(); err != nil {
			return nil, err
		}
		if err := writeMeta(ps, spec); err != nil {
			return nil, err
		}
		stored = spec
		log.Info(log.StoreMonitoring, "initialised tree store", "spec", spec.ID, "depth", spec.Depth, "hasher", spec.Hasher)
	case spec != nil && !stored.SameTree(spec):
		return nil, fmt.Errorf("stored %s/%d/%s, requested %s/%d/%s: %w",
			stored.Hasher, stored.Depth, stored.ZeroValue, spec.Hasher, spec.Depth, spec.ZeroValue, merkleerrors.ErrStoreMismatch)
	}

	tree, err := stored.NewTree()
	if err != nil {
		return nil, err
	}
	leaves, err := readLeaves(ps, tree.Capacity())
	if err != nil {
		return nil, err
	}
	if err := tree.InsertBatch(leaves); err != nil {
		return nil, err
	}
	log.Debug(log.StoreMonitoring, "replayed tree store", "leaves", len(leaves), "root", tree.Root().Short())

	return &TreeStore{
		ps:     ps,
		spec:   stored,
		tree:   tree,
		tracer: telemetry.Tracer(tracerName),
	}, nil
}

func readMeta(ps *PersistenceStore) (*treespec.TreeSpec, error) {
	data, ok, err := ps.Get(metaKey)
	if err != nil || !ok {
		return nil, err
	}
	var spec treespec.TreeSpec
	if err := json.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("meta: %v: %w", err, merkleerrors.ErrStoreCorrupt)
	}
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("meta: %v: %w", err, merkleerrors.ErrStoreCorrupt)
	}
	return &spec, nil
}

func writeMeta(ps *PersistenceStore, spec *treespec.TreeSpec) error {
	data, err := json.Marshal(spec)
	if err != nil {
		return err
	}
	batch := new(leveldb.Batch)
	batch.Put(metaKey, data)
	batch.Put(countKey, encodeCount(0))
	return ps.Write(batch)
}

// readLeaves loads the stored leaves in index order. The count is read from
// disk, so it is bounded by the tree capacity before anything is loaded.
func readLeaves(ps *PersistenceStore, capacity uint64) ([]field.Element, error) {
	data, ok, err := ps.Get(countKey)
	if err != nil {
		return nil, err
	}
	if !ok || len(data) != 8 {
		return nil, fmt.Errorf("leaf count: %w", merkleerrors.ErrStoreCorrupt)
	}
	count := binary.BigEndian.Uint64(data)
	if count > capacity {
		return nil, fmt.Errorf("leaf count %d exceeds capacity %d: %w", count, capacity, merkleerrors.ErrStoreCorrupt)
	}

	var leaves []field.Element
	for i := uint64(0); i < count; i++ {
		leaf, ok, err := ps.GetElement(leafKey(i))
		if err != nil {
			return nil, fmt.Errorf("leaf %d: %v: %w", i, err, merkleerrors.ErrStoreCorrupt)
		}
		if !ok {
			return nil, fmt.Errorf("leaf %d of %d missing: %w", i, count, merkleerrors.ErrStoreCorrupt)
		}
		leaves = append(leaves, leaf)
	}
	return leaves, nil
}

func encodeCount(n uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, n)
	return b
}

func putLeaf(batch *leveldb.Batch, index uint64, value field.Element) {
	b := value.Bytes()
	batch.Put(leafKey(index), b[:])
}

func (s *TreeStore) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("tree.spec", s.spec.ID),
		attribute.Int("tree.depth", s.spec.Depth),
	))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// Insert appends value and returns its leaf index.
func (s *TreeStore) Insert(ctx context.Context, value field.Element) (index uint64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, span := s.startSpan(ctx, "TreeStore.Insert")
	defer func() { endSpan(span, err) }()

	index = s.tree.Len()
	if s.tree.IsFull() {
		return index, fmt.Errorf("store insert at %d: %w", index, merkleerrors.ErrCapacityExceeded)
	}
	batch := new(leveldb.Batch)
	putLeaf(batch, index, value)
	batch.Put(countKey, encodeCount(index+1))
	if err := s.ps.Write(batch); err != nil {
		return index, err
	}
	if err := s.tree.Insert(value); err != nil {
		return index, err
	}
	span.SetAttributes(attribute.Int64("leaf.index", int64(index)), attribute.String("tree.root", s.tree.Root().Hex()))
	log.Debug(log.StoreMonitoring, "insert", "index", index, "leaf", value.Short(), "root", s.tree.Root().Short())
	return index, nil
}

// InsertBatch appends values atomically and returns the index of the first.
func (s *TreeStore) InsertBatch(ctx context.Context, values []field.Element) (first uint64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, span := s.startSpan(ctx, "TreeStore.InsertBatch")
	defer func() { endSpan(span, err) }()

	first = s.tree.Len()
	if uint64(len(values)) > s.tree.Capacity()-first {
		return first, fmt.Errorf("store insert %d leaves at %d: %w", len(values), first, merkleerrors.ErrCapacityExceeded)
	}
	batch := new(leveldb.Batch)
	for i, v := range values {
		putLeaf(batch, first+uint64(i), v)
	}
	batch.Put(countKey, encodeCount(first+uint64(len(values))))
	if err := s.ps.Write(batch); err != nil {
		return first, err
	}
	if err := s.tree.InsertBatch(values); err != nil {
		return first, err
	}
	span.SetAttributes(attribute.Int("leaf.count", len(values)), attribute.String("tree.root", s.tree.Root().Hex()))
	log.Debug(log.StoreMonitoring, "insert batch", "first", first, "count", len(values), "root", s.tree.Root().Short())
	return first, nil
}

// Update replaces the leaf at index and rebuilds the tree.
func (s *TreeStore) Update(ctx context.Context, index uint64, value field.Element) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, span := s.startSpan(ctx, "TreeStore.Update")
	span.SetAttributes(attribute.Int64("leaf.index", int64(index)))
	defer func() { endSpan(span, err) }()

	if index >= s.tree.Len() {
		return fmt.Errorf("store update %d of %d: %w", index, s.tree.Len(), merkleerrors.ErrIndexOutOfRange)
	}
	batch := new(leveldb.Batch)
	putLeaf(batch, index, value)
	if err := s.ps.Write(batch); err != nil {
		return err
	}
	if err := s.tree.Update(index, value); err != nil {
		return err
	}
	span.SetAttributes(attribute.String("tree.root", s.tree.Root().Hex()))
	log.Debug(log.StoreMonitoring, "update", "index", index, "leaf", value.Short(), "root", s.tree.Root().Short())
	return nil
}

func (s *TreeStore) Leaf(index uint64) (field.Element, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tree.Leaf(index)
}

func (s *TreeStore) MerkleProof(ctx context.Context, index uint64) (proof *merkle.Proof, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, span := s.startSpan(ctx, "TreeStore.MerkleProof")
	span.SetAttributes(attribute.Int64("leaf.index", int64(index)))
	defer func() { endSpan(span, err) }()
	return s.tree.MerkleProof(index)
}

func (s *TreeStore) Root() field.Element {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tree.Root()
}

func (s *TreeStore) Snapshot() merkle.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tree.Snapshot()
}

// Spec returns the parameters the store was created with.
func (s *TreeStore) Spec() treespec.TreeSpec {
	return *s.spec
}

// View runs fn with the store locked. fn must not retain or mutate the tree.
func (s *TreeStore) View(fn func(t *merkle.Tree) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.tree)
}

func (s *TreeStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ps.Close()
}
