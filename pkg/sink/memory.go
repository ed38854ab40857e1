package sink

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

var ErrClosed = errors.New("sink already closed")

// MemorySink keeps everything written to it and remembers each Write call.
type MemorySink struct {
	mu     sync.Mutex
	buf    bytes.Buffer
	writes [][]byte
	closes int
}

func (m *MemorySink) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closes > 0 {
		return 0, ErrClosed
	}
	m.writes = append(m.writes, bytes.Clone(p))
	return m.buf.Write(p)
}

func (m *MemorySink) Close() error {
	m.mu.Lock()
	m.closes++
	m.mu.Unlock()
	return nil
}

func (m *MemorySink) Bytes() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return bytes.Clone(m.buf.Bytes())
}

func (m *MemorySink) String() string {
	return string(m.Bytes())
}

// Writes returns the payload of every Write call in order.
func (m *MemorySink) Writes() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.writes))
	copy(out, m.writes)
	return out
}

func (m *MemorySink) Closes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closes
}

// MemoryFactory hands out MemorySinks keyed by name. OpenErr, when set,
// makes Open fail for that name.
type MemoryFactory struct {
	mu      sync.Mutex
	sinks   map[string]*MemorySink
	order   []string
	OpenErr map[string]error
}

func NewMemoryFactory() *MemoryFactory {
	return &MemoryFactory{sinks: make(map[string]*MemorySink)}
}

func (f *MemoryFactory) Open(ctx context.Context, name string) (Sink, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.OpenErr[name]; ok {
		return nil, err
	}
	if _, err := CleanName(name); err != nil {
		return nil, err
	}
	if _, exists := f.sinks[name]; exists {
		return nil, fmt.Errorf("%w: %q opened twice", ErrInvalidName, name)
	}
	s := &MemorySink{}
	f.sinks[name] = s
	f.order = append(f.order, name)
	return s, nil
}

// Get returns the sink opened under name, or nil.
func (f *MemoryFactory) Get(name string) *MemorySink {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sinks[name]
}

// Opened lists opened names in open order.
func (f *MemoryFactory) Opened() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.order...)
}

// MemoryStore keeps one MemoryFactory per upload.
type MemoryStore struct {
	mu         sync.Mutex
	namespaces map[string]*MemoryFactory
	Capacity   uint64 // zero means unlimited
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{namespaces: make(map[string]*MemoryFactory)}
}

func (s *MemoryStore) Namespace(ctx context.Context, uploadID string) (Factory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.namespaces[uploadID]; exists {
		return nil, fmt.Errorf("namespace %s already exists", uploadID)
	}
	f := NewMemoryFactory()
	s.namespaces[uploadID] = f
	return f, nil
}

func (s *MemoryStore) Reserve(ctx context.Context, total uint64) error {
	if s.Capacity > 0 && total > s.Capacity {
		return fmt.Errorf("%w: need %d bytes, capacity %d", ErrInsufficientSpace, total, s.Capacity)
	}
	return nil
}

func (s *MemoryStore) Factory(uploadID string) *MemoryFactory {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.namespaces[uploadID]
}

func (s *MemoryStore) UploadIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.namespaces))
	for id := range s.namespaces {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
