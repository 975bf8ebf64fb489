package pipeline

import (
	"container/heap"
	"time"

	"github.com/sonet-social/search-service/internal/model"
)

// queueItem wraps a task with its heap index for container/heap.
type queueItem struct {
	task  *model.IndexingTask
	index int
}

// taskHeap orders items by (priority desc, scheduled_at asc), the §4.4
// priority-queue discipline.
type taskHeap []*queueItem

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	if h[i].task.Priority != h[j].task.Priority {
		return h[i].task.Priority > h[j].task.Priority
	}
	return h[i].task.ScheduledAt.Before(h[j].task.ScheduledAt)
}

func (h taskHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *taskHeap) Push(x interface{}) {
	item := x.(*queueItem)
	item.index = len(*h)
	*h = append(*h, item)
}

func (h *taskHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*h = old[:n-1]
	return item
}

// priorityQueue is the §4.4 queue: a heap plus an index by document id used
// to collapse duplicates when a task is pushed (latest update wins, delete
// dominates).
type priorityQueue struct {
	heap  taskHeap
	byDoc map[string]*queueItem
}

func newPriorityQueue() *priorityQueue {
	return &priorityQueue{byDoc: make(map[string]*queueItem)}
}

func (q *priorityQueue) Len() int { return q.heap.Len() }

// push inserts a task, collapsing any existing pending task for the same
// document id: delete dominates, otherwise the later-scheduled op wins.
func (q *priorityQueue) push(task *model.IndexingTask) {
	docID := task.DocID()
	if existing, ok := q.byDoc[docID]; ok {
		if existing.task.Op == model.OpDelete {
			return // delete is terminal; nothing supersedes it
		}
		if task.Op != model.OpDelete && task.ScheduledAt.Before(existing.task.ScheduledAt) {
			return // an even-later update is already pending
		}
		existing.task = task
		heap.Fix(&q.heap, existing.index)
		return
	}
	item := &queueItem{task: task}
	heap.Push(&q.heap, item)
	q.byDoc[docID] = item
}

// popReady pops up to max tasks whose ScheduledAt is due, in priority order.
func (q *priorityQueue) popReady(max int, now time.Time) []*model.IndexingTask {
	var out []*model.IndexingTask
	var deferred []*queueItem

	for len(out) < max && q.heap.Len() > 0 {
		item := heap.Pop(&q.heap).(*queueItem)
		delete(q.byDoc, item.task.DocID())
		if item.task.ScheduledAt.After(now) {
			deferred = append(deferred, item)
			continue
		}
		out = append(out, item.task)
	}

	for _, item := range deferred {
		heap.Push(&q.heap, item)
		q.byDoc[item.task.DocID()] = item
	}

	return out
}
