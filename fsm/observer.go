package fsm

import (
	"sync"
)

// CachedObserver is an observer that caches the most recent transitions of
// the observed state machine.
type CachedObserver struct {
	cachedNotifications *FixedSizeSlice[Notification]
}

// A compile time check to ensure CachedObserver implements Observer.
var _ Observer = (*CachedObserver)(nil)

// NewCachedObserver creates a new cached observer with the given maximum
// number of cached notifications.
func NewCachedObserver(maxElements int) *CachedObserver {
	return &CachedObserver{
		cachedNotifications: NewFixedSizeSlice[Notification](
			maxElements,
		),
	}
}

// Notify implements the Observer interface.
func (c *CachedObserver) Notify(notification Notification) {
	c.cachedNotifications.Add(notification)
}

// GetCachedNotifications returns a copy of the cached notifications.
func (c *CachedObserver) GetCachedNotifications() []Notification {
	return c.cachedNotifications.Get()
}

// VisitedStates returns the states entered, oldest first.
func (c *CachedObserver) VisitedStates() []StateType {
	notifications := c.cachedNotifications.Get()

	states := make([]StateType, 0, len(notifications))
	for _, n := range notifications {
		states = append(states, n.NextState)
	}

	return states
}

// FixedSizeSlice is a slice with a fixed size.
type FixedSizeSlice[T any] struct {
	data   []T
	maxLen int

	sync.Mutex
}

// NewFixedSizeSlice initializes a new FixedSizeSlice with a given maximum
// length.
func NewFixedSizeSlice[T any](maxLen int) *FixedSizeSlice[T] {
	return &FixedSizeSlice[T]{
		data:   make([]T, 0, maxLen),
		maxLen: maxLen,
	}
}

// Add appends a new element to the slice. If the slice reaches its maximum
// length, the first element is removed.
func (fs *FixedSizeSlice[T]) Add(element T) {
	fs.Lock()
	defer fs.Unlock()

	if len(fs.data) == fs.maxLen {
		// Remove the first element
		fs.data = fs.data[1:]
	}
	// Add the new element
	fs.data = append(fs.data, element)
}

// Get returns a copy of the slice.
func (fs *FixedSizeSlice[T]) Get() []T {
	fs.Lock()
	defer fs.Unlock()

	data := make([]T, len(fs.data))
	copy(data, fs.data)

	return data
}
