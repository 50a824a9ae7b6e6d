package jit

import (
	"strconv"
	"sync"

	"github.com/wippyai/wasm-kernels/kernel"
	"github.com/wippyai/wasm-kernels/types"
)

// Key identifies a specialization: one kernel and one Type Signature.
type Key struct {
	Kernel    uint64
	Signature string
}

// KeyOf returns the cache key of k specialized for sig.
func KeyOf(k *kernel.Kernel, sig types.Signature) Key {
	return Key{Kernel: k.ID(), Signature: sig.Key()}
}

func (k Key) String() string {
	return strconv.FormatUint(k.Kernel, 10) + ":" + k.Signature
}

// Store holds specializations. Implementations must be safe for concurrent
// use; LoadOrStore must be atomic.
type Store interface {
	Load(key Key) (Compiled, bool)
	// LoadOrStore returns the existing entry for key if present. Otherwise it
	// stores c and returns it. loaded reports whether the entry existed.
	LoadOrStore(key Key, c Compiled) (actual Compiled, loaded bool)
	Delete(key Key)
	Range(fn func(Key, Compiled) bool)
	Len() int
}

// MapStore is the default in-memory Store.
type MapStore struct {
	mu      sync.RWMutex
	entries map[Key]Compiled
}

// NewMapStore creates an empty store.
func NewMapStore() *MapStore {
	return &MapStore{entries: make(map[Key]Compiled)}
}

func (s *MapStore) Load(key Key) (Compiled, bool) {
	s.mu.RLock()
	c, ok := s.entries[key]
	s.mu.RUnlock()
	return c, ok
}

func (s *MapStore) LoadOrStore(key Key, c Compiled) (Compiled, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.entries[key]; ok {
		return existing, true
	}
	s.entries[key] = c
	return c, false
}

func (s *MapStore) Delete(key Key) {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
}

// Range calls fn for a snapshot of the entries until fn returns false.
func (s *MapStore) Range(fn func(Key, Compiled) bool) {
	s.mu.RLock()
	keys := make([]Key, 0, len(s.entries))
	vals := make([]Compiled, 0, len(s.entries))
	for k, v := range s.entries {
		keys = append(keys, k)
		vals = append(vals, v)
	}
	s.mu.RUnlock()
	for i := range keys {
		if !fn(keys[i], vals[i]) {
			return
		}
	}
}

func (s *MapStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
