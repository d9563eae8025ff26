package queue

import (
	"container/heap"
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"pnp-bridge/models"
)

// Entry wraps a command with its enqueue instant. Ordering is priority
// descending, then enqueue order ascending (FIFO within equal priority).
type Entry struct {
	Command    *models.Command
	EnqueuedAt time.Time
	seq        uint64
	index      int
}

// CommandQueue is the bounded priority queue feeding the single consumer.
// Enqueue is safe under concurrent callers; Dequeue blocks until an entry
// is available or the context is done.
type CommandQueue struct {
	mu      sync.Mutex
	entries entryHeap
	byID    map[string]*Entry
	maxSize int
	nextSeq uint64
	wakeup  chan struct{}
	logger  *slog.Logger
}

// NewCommandQueue creates a queue with the given capacity.
func NewCommandQueue(maxSize int, logger *slog.Logger) *CommandQueue {
	return &CommandQueue{
		byID:    make(map[string]*Entry),
		maxSize: maxSize,
		wakeup:  make(chan struct{}, 1),
		logger:  logger.With("component", "command_queue"),
	}
}

// Enqueue inserts a command. Returns QUEUE_FULL once capacity is reached.
func (q *CommandQueue) Enqueue(cmd *models.Command) error {
	q.mu.Lock()
	if len(q.entries) >= q.maxSize {
		q.mu.Unlock()
		return models.NewCommandError(models.ErrCodeQueueFull,
			fmt.Sprintf("queue is full (capacity %d)", q.maxSize))
	}
	entry := &Entry{
		Command:    cmd,
		EnqueuedAt: time.Now(),
		seq:        q.nextSeq,
	}
	q.nextSeq++
	heap.Push(&q.entries, entry)
	q.byID[cmd.ID] = entry
	size := len(q.entries)
	q.mu.Unlock()

	q.signal()
	q.logger.Debug("command enqueued", "id", cmd.ID, "type", cmd.Type, "priority", cmd.Priority, "queue_size", size)
	return nil
}

// Dequeue removes and returns the highest-priority, earliest-enqueued entry,
// blocking while the queue is empty.
func (q *CommandQueue) Dequeue(ctx context.Context) (*Entry, error) {
	for {
		if entry := q.TryDequeue(); entry != nil {
			return entry, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.wakeup:
		}
	}
}

// TryDequeue removes the next entry without blocking, or returns nil.
func (q *CommandQueue) TryDequeue() *Entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.entries) == 0 {
		return nil
	}
	entry := heap.Pop(&q.entries).(*Entry)
	delete(q.byID, entry.Command.ID)
	if len(q.entries) > 0 {
		// Keep any other waiter awake; the buffered channel may have been
		// drained by this call.
		select {
		case q.wakeup <- struct{}{}:
		default:
		}
	}
	return entry
}

// Cancel removes a still-pending entry by id. An entry already dequeued
// (executing or finished) cannot be cancelled here.
func (q *CommandQueue) Cancel(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	entry, ok := q.byID[id]
	if !ok {
		return models.NewCommandError(models.ErrCodeCommandNotFound,
			fmt.Sprintf("command %s is not pending in the queue", id))
	}
	heap.Remove(&q.entries, entry.index)
	delete(q.byID, id)
	entry.Command.Status = models.StatusCancelled
	return nil
}

// Clear drains all pending entries without executing them and returns how
// many were removed.
func (q *CommandQueue) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	count := len(q.entries)
	for _, entry := range q.entries {
		entry.Command.Status = models.StatusCancelled
	}
	q.entries = nil
	q.byID = make(map[string]*Entry)
	return count
}

// Size returns the number of pending entries.
func (q *CommandQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Contains reports whether a command id is still pending.
func (q *CommandQueue) Contains(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.byID[id]
	return ok
}

// Snapshot returns the pending entries in dispatch order. The heap itself
// is left untouched so entry indexes stay valid for Cancel.
func (q *CommandQueue) Snapshot() []*Entry {
	q.mu.Lock()
	out := make([]*Entry, len(q.entries))
	copy(out, q.entries)
	q.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Command.Priority != out[j].Command.Priority {
			return out[i].Command.Priority > out[j].Command.Priority
		}
		return out[i].seq < out[j].seq
	})
	return out
}

func (q *CommandQueue) signal() {
	select {
	case q.wakeup <- struct{}{}:
	default:
	}
}

// entryHeap orders by priority descending, then seq ascending.
type entryHeap []*Entry

func (h entryHeap) Len() int { return len(h) }

func (h entryHeap) Less(i, j int) bool {
	if h[i].Command.Priority != h[j].Command.Priority {
		return h[i].Command.Priority > h[j].Command.Priority
	}
	return h[i].seq < h[j].seq
}

func (h entryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *entryHeap) Push(x interface{}) {
	entry := x.(*Entry)
	entry.index = len(*h)
	*h = append(*h, entry)
}

func (h *entryHeap) Pop() interface{} {
	old := *h
	n := len(old)
	entry := old[n-1]
	old[n-1] = nil
	entry.index = -1
	*h = old[:n-1]
	return entry
}
