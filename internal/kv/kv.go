package kv

import (
	"bytes"
	"encoding/binary"
	"sort"
	"sync"
)

// Store is ordered byte-keyed storage. Get returns (nil, nil) for a missing key.
type Store interface {
	Get(key []byte) ([]byte, error)
	Set(key, value []byte) error
	Delete(key []byte) error
	// Iterate visits every pair whose key starts with prefix, in ascending key order.
	Iterate(prefix []byte, fn func(key, value []byte) error) error
}

// Op is one buffered write. A nil Value deletes Key.
type Op struct {
	Key   []byte
	Value []byte
}

// Batcher is implemented by stores that can apply many writes atomically.
type Batcher interface {
	ApplyBatch(ops []Op) error
}

// MemStore is an in-memory Store. Safe for concurrent use.
type MemStore struct {
	mu sync.RWMutex
	m  map[string][]byte
}

func NewMemStore() *MemStore {
	return &MemStore{m: map[string][]byte{}}
}

func (s *MemStore) Get(key []byte) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.m[string(key)]
	if !ok {
		return nil, nil
	}
	return bytes.Clone(v), nil
}

func (s *MemStore) Set(key, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[string(key)] = bytes.Clone(value)
	return nil
}

func (s *MemStore) Delete(key []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, string(key))
	return nil
}

func (s *MemStore) ApplyBatch(ops []Op) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, op := range ops {
		if op.Value == nil {
			delete(s.m, string(op.Key))
			continue
		}
		s.m[string(op.Key)] = bytes.Clone(op.Value)
	}
	return nil
}

func (s *MemStore) Iterate(prefix []byte, fn func(key, value []byte) error) error {
	s.mu.RLock()
	keys := make([]string, 0, len(s.m))
	for k := range s.m {
		if bytes.HasPrefix([]byte(k), prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	pairs := make([][2][]byte, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, [2][]byte{[]byte(k), bytes.Clone(s.m[k])})
	}
	s.mu.RUnlock()

	for _, p := range pairs {
		if err := fn(p[0], p[1]); err != nil {
			return err
		}
	}
	return nil
}

func (s *MemStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.m)
}

// Prefixed scopes a Store to a length-prefixed namespace so that two
// namespaces can never produce colliding keys.
type Prefixed struct {
	parent Store
	prefix []byte
}

func NewPrefixed(parent Store, namespace string) *Prefixed {
	return &Prefixed{parent: parent, prefix: NamespaceKey(namespace)}
}

// NamespaceKey encodes namespace as a 2-byte big-endian length followed by its bytes.
func NamespaceKey(namespace string) []byte {
	out := make([]byte, 2, 2+len(namespace))
	binary.BigEndian.PutUint16(out, uint16(len(namespace)))
	return append(out, namespace...)
}

func (p *Prefixed) key(k []byte) []byte {
	out := make([]byte, 0, len(p.prefix)+len(k))
	out = append(out, p.prefix...)
	return append(out, k...)
}

func (p *Prefixed) Get(key []byte) ([]byte, error) { return p.parent.Get(p.key(key)) }
func (p *Prefixed) Set(key, value []byte) error    { return p.parent.Set(p.key(key), value) }
func (p *Prefixed) Delete(key []byte) error        { return p.parent.Delete(p.key(key)) }

func (p *Prefixed) Iterate(prefix []byte, fn func(key, value []byte) error) error {
	n := len(p.prefix)
	return p.parent.Iterate(p.key(prefix), func(k, v []byte) error {
		return fn(k[n:], v)
	})
}

// PrefixEnd returns the smallest key greater than every key starting with
// prefix, or nil when no such key exists.
func PrefixEnd(prefix []byte) []byte {
	end := bytes.Clone(prefix)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}
