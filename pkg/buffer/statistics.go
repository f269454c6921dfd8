package buffer

import (
	"sync"
	"sync/atomic"
	"time"
)

// Statistics tracks buffer operation counts.
type Statistics struct {
	// Atomic counters for thread-safe updates
	puts          int64
	takes         int64
	putWaits      int64
	takeWaits     int64
	cancellations int64

	// Protected by mutex
	mu          sync.RWMutex
	startTime   time.Time
	currentSize int64
	maxSize     int64
}

// NewStatistics creates a new statistics tracker.
func NewStatistics() *Statistics {
	return &Statistics{
		startTime: time.Now(),
	}
}

// Put records a successful insert.
func (s *Statistics) Put() {
	atomic.AddInt64(&s.puts, 1)
}

// Take records a successful removal.
func (s *Statistics) Take() {
	atomic.AddInt64(&s.takes, 1)
}

// PutWait records a Put that found the buffer full and had to wait.
func (s *Statistics) PutWait() {
	atomic.AddInt64(&s.putWaits, 1)
}

// TakeWait records a Take that found the buffer empty and had to wait.
func (s *Statistics) TakeWait() {
	atomic.AddInt64(&s.takeWaits, 1)
}

// Cancel records a Put or Take abandoned because its context was done.
func (s *Statistics) Cancel() {
	atomic.AddInt64(&s.cancellations, 1)
}

// UpdateSize updates the current buffer size.
func (s *Statistics) UpdateSize(size int64) {
	s.mu.Lock()
	s.currentSize = size
	if size > s.maxSize {
		s.maxSize = size
	}
	s.mu.Unlock()
}

// Puts returns the total number of successful inserts.
func (s *Statistics) Puts() int64 {
	return atomic.LoadInt64(&s.puts)
}

// Takes returns the total number of successful removals.
func (s *Statistics) Takes() int64 {
	return atomic.LoadInt64(&s.takes)
}

// PutWaits returns how many puts had to wait for room.
func (s *Statistics) PutWaits() int64 {
	return atomic.LoadInt64(&s.putWaits)
}

// TakeWaits returns how many takes had to wait for an item.
func (s *Statistics) TakeWaits() int64 {
	return atomic.LoadInt64(&s.takeWaits)
}

// Cancellations returns how many calls returned because of their context.
func (s *Statistics) Cancellations() int64 {
	return atomic.LoadInt64(&s.cancellations)
}

// CurrentSize returns the current number of items in the buffer.
func (s *Statistics) CurrentSize() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentSize
}

// MaxSize returns the maximum number of items the buffer has held.
func (s *Statistics) MaxSize() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.maxSize
}

// Throughput returns the average number of puts per second.
func (s *Statistics) Throughput() float64 {
	elapsed := s.Uptime()
	if elapsed <= 0 {
		return 0.0
	}
	return float64(s.Puts()) / elapsed.Seconds()
}

// TakeThroughput returns the average number of takes per second.
func (s *Statistics) TakeThroughput() float64 {
	elapsed := s.Uptime()
	if elapsed <= 0 {
		return 0.0
	}
	return float64(s.Takes()) / elapsed.Seconds()
}

// Utilization returns the current buffer utilization (0.0 to 1.0).
func (s *Statistics) Utilization(capacity int64) float64 {
	if capacity == 0 {
		return 0.0
	}
	return float64(s.CurrentSize()) / float64(capacity)
}

// Uptime returns how long the buffer has been running.
func (s *Statistics) Uptime() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return time.Since(s.startTime)
}

// StatsSummary returns a snapshot of all statistics.
type StatsSummary struct {
	Puts           int64         `json:"puts"`
	Takes          int64         `json:"takes"`
	PutWaits       int64         `json:"put_waits"`
	TakeWaits      int64         `json:"take_waits"`
	Cancellations  int64         `json:"cancellations"`
	CurrentSize    int64         `json:"current_size"`
	MaxSize        int64         `json:"max_size"`
	Throughput     float64       `json:"throughput"`
	TakeThroughput float64       `json:"take_throughput"`
	Uptime         time.Duration `json:"uptime"`
}

// Summary returns a snapshot of all statistics.
func (s *Statistics) Summary() StatsSummary {
	return StatsSummary{
		Puts:           s.Puts(),
		Takes:          s.Takes(),
		PutWaits:       s.PutWaits(),
		TakeWaits:      s.TakeWaits(),
		Cancellations:  s.Cancellations(),
		CurrentSize:    s.CurrentSize(),
		MaxSize:        s.MaxSize(),
		Throughput:     s.Throughput(),
		TakeThroughput: s.TakeThroughput(),
		Uptime:         s.Uptime(),
	}
}
