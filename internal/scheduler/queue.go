package scheduler

import "sort"

// entry is one priority-queue slot: the comparator keys spec.md names
// (-priority, submit_time, job_id), kept lexicographic so higher priority
// wins and, within a priority, earlier submissions win.
type entry struct {
	priority   int
	submitTime int64
	jobID      string
}

func less(a, b entry) bool {
	if a.priority != b.priority {
		return a.priority > b.priority // higher priority first
	}
	if a.submitTime != b.submitTime {
		return a.submitTime < b.submitTime // earlier submission first
	}
	return a.jobID < b.jobID
}

// priorityQueue is an ordered, non-destructive view over queued job ids.
// Placement needs to "try a job and push it back": drainAll hands out a
// snapshot in order, and requeue puts back whatever the caller didn't
// consume, preserving relative order of the deferred entries.
type priorityQueue struct {
	entries []entry
}

func newPriorityQueue() *priorityQueue {
	return &priorityQueue{}
}

// push inserts a job into its sorted position.
func (q *priorityQueue) push(jobID string, priority int, submitTime int64) {
	e := entry{priority: priority, submitTime: submitTime, jobID: jobID}
	idx := sort.Search(len(q.entries), func(i int) bool { return less(e, q.entries[i]) || q.entries[i] == e })
	q.entries = append(q.entries, entry{})
	copy(q.entries[idx+1:], q.entries[idx:])
	q.entries[idx] = e
}

// remove drops a job id from the queue if present (used by cancellation of
// a queued job so it is never considered by a later placement pass).
func (q *priorityQueue) remove(jobID string) {
	for i, e := range q.entries {
		if e.jobID == jobID {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			return
		}
	}
}

// drainAll removes and returns every entry in priority order.
func (q *priorityQueue) drainAll() []entry {
	out := q.entries
	q.entries = nil
	return out
}

// requeue reinserts entries (already in priority order) at the front of the
// queue, ahead of anything pushed since drainAll — there is nothing to
// reorder against since drainAll emptied the queue; callers pass the
// subsequence of drained entries they didn't consume.
func (q *priorityQueue) requeue(deferred []entry) {
	if len(deferred) == 0 {
		return
	}
	q.entries = append(deferred, q.entries...)
}

func (q *priorityQueue) len() int {
	return len(q.entries)
}
