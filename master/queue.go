package master

import "container/heap"

// TaskState is a task's position in its lifecycle.
type TaskState int

// Task states.
const (
	TaskIdle TaskState = iota
	TaskInProgress
	TaskAwaitingResponse
	TaskAwaitingConfirm
	TaskCompleted
	TaskFailed
)

func (s TaskState) String() string {
	switch s {
	case TaskIdle:
		return "Idle"
	case TaskInProgress:
		return "InProgress"
	case TaskAwaitingResponse:
		return "AwaitingResponse"
	case TaskAwaitingConfirm:
		return "AwaitingConfirm"
	case TaskCompleted:
		return "Completed"
	case TaskFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Task is one unit of work an Association's queue schedules: a poll, a
// command, or an integrity scan. Lower Priority values run first; ties
// break on Deadline (earlier first), then on enqueue order (FIFO among
// otherwise-identical tasks).
type Task struct {
	Name     string
	Priority int
	Deadline int64 // monotonic-ish ordering key (unix nanos); 0 = no deadline
	Execute  func() error

	state   TaskState
	seq     uint64 // enqueue order, assigned by the queue
}

// State returns the task's current lifecycle state.
func (t *Task) State() TaskState { return t.state }

// taskHeap is a container/heap.Interface over *Task ordered by the
// (priority, deadline, enqueue order) tie-break rule.
type taskHeap []*Task

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority < h[j].Priority
	}
	if h[i].Deadline != h[j].Deadline {
		if h[i].Deadline == 0 {
			return false
		}
		if h[j].Deadline == 0 {
			return true
		}
		return h[i].Deadline < h[j].Deadline
	}
	return h[i].seq < h[j].seq
}

func (h taskHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *taskHeap) Push(x any) { *h = append(*h, x.(*Task)) }

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// TaskQueue is a per-association priority queue of pending Tasks.
type TaskQueue struct {
	h      taskHeap
	nextID uint64
}

// NewTaskQueue creates an empty TaskQueue.
func NewTaskQueue() *TaskQueue {
	q := &TaskQueue{}
	heap.Init(&q.h)
	return q
}

// Enqueue adds t to the queue, assigning it the next enqueue-order tie
// breaker and moving it to TaskIdle.
func (q *TaskQueue) Enqueue(t *Task) {
	t.state = TaskIdle
	t.seq = q.nextID
	q.nextID++
	heap.Push(&q.h, t)
}

// Len returns the number of pending tasks.
func (q *TaskQueue) Len() int { return len(q.h) }

// Pop removes and returns the highest-priority task, or nil if empty.
func (q *TaskQueue) Pop() *Task {
	if q.h.Len() == 0 {
		return nil
	}
	return heap.Pop(&q.h).(*Task)
}
