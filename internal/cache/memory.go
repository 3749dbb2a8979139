package cache

import (
	"context"
	"sync"
)

// Memory is an in-process backend. With a positive capacity it evicts the
// least recently used entry; capacity 0 leaves it unbounded, so memory grows
// with the number of distinct courses.
type Memory struct {
	mu       sync.Mutex
	capacity int
	items    map[string]*memItem
	head     *memItem
	tail     *memItem
}

type memItem struct {
	entry Entry
	prev  *memItem
	next  *memItem
}

// NewMemory creates a memory backend.
func NewMemory(capacity int) *Memory {
	if capacity < 0 {
		capacity = 0
	}
	return &Memory{
		capacity: capacity,
		items:    make(map[string]*memItem),
	}
}

// Get implements Backend.
func (m *Memory) Get(_ context.Context, courseID string) (Entry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.items[courseID]
	if !ok {
		return Entry{}, false, nil
	}
	m.moveToFront(item)
	return item.entry, true, nil
}

// Put implements Backend.
func (m *Memory) Put(_ context.Context, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if item, ok := m.items[e.CourseID]; ok {
		item.entry = e
		m.moveToFront(item)
		return nil
	}

	item := &memItem{entry: e}
	m.addToFront(item)
	m.items[e.CourseID] = item

	if m.capacity > 0 && len(m.items) > m.capacity {
		m.evictLRU()
	}
	return nil
}

// Delete implements Backend.
func (m *Memory) Delete(_ context.Context, courseID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if item, ok := m.items[courseID]; ok {
		m.unlink(item)
		delete(m.items, courseID)
	}
	return nil
}

// Len implements Backend.
func (m *Memory) Len(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items), nil
}

func (m *Memory) moveToFront(item *memItem) {
	if item == m.head {
		return
	}
	m.unlink(item)
	m.addToFront(item)
}

func (m *Memory) addToFront(item *memItem) {
	item.next = m.head
	item.prev = nil
	if m.head != nil {
		m.head.prev = item
	}
	m.head = item
	if m.tail == nil {
		m.tail = item
	}
}

func (m *Memory) unlink(item *memItem) {
	if item.prev != nil {
		item.prev.next = item.next
	} else {
		m.head = item.next
	}
	if item.next != nil {
		item.next.prev = item.prev
	} else {
		m.tail = item.prev
	}
	item.prev = nil
	item.next = nil
}

func (m *Memory) evictLRU() {
	if m.tail == nil {
		return
	}
	item := m.tail
	m.unlink(item)
	delete(m.items, item.entry.CourseID)
}

var _ Backend = (*Memory)(nil)
