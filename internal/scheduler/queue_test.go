package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPriorityQueueOrdering(t *testing.T) {
	q := newPriorityQueue()
	q.push("job3", 5, 100)
	q.push("job1", 10, 50)
	q.push("job2", 10, 10)

	drained := q.drainAll()
	ids := make([]string, len(drained))
	for i, e := range drained {
		ids[i] = e.jobID
	}
	// job2 and job1 share priority 10 but job2 submitted earlier; job3 is
	// lower priority so it sorts last.
	assert.Equal(t, []string{"job2", "job1", "job3"}, ids)
}

func TestPriorityQueueTiebreakByJobID(t *testing.T) {
	q := newPriorityQueue()
	q.push("job2", 1, 100)
	q.push("job1", 1, 100)

	drained := q.drainAll()
	assert.Equal(t, "job1", drained[0].jobID)
	assert.Equal(t, "job2", drained[1].jobID)
}

func TestPriorityQueueRemove(t *testing.T) {
	q := newPriorityQueue()
	q.push("job1", 1, 1)
	q.push("job2", 1, 2)
	q.remove("job1")

	assert.Equal(t, 1, q.len())
	drained := q.drainAll()
	assert.Equal(t, "job2", drained[0].jobID)
}

func TestPriorityQueueRequeuePreservesOrderAtFront(t *testing.T) {
	q := newPriorityQueue()
	q.push("job1", 1, 1)
	q.push("job2", 1, 2)

	drained := q.drainAll()
	assert.Equal(t, 0, q.len())

	// Simulate a placement pass deferring both entries, then a new
	// submission arriving before the next tick.
	q.requeue(drained)
	q.push("job3", 1, 3)

	ids := make([]string, 0, 3)
	for _, e := range q.entries {
		ids = append(ids, e.jobID)
	}
	assert.Equal(t, []string{"job1", "job2", "job3"}, ids)
}
