package scheduler

import "sort"

// LaunchInstruction is the Placement Engine's output: a job paired with the
// GPU ids it is to run on, handed to the Process Supervisor.
type LaunchInstruction struct {
	JobID        string
	AssignedGPUs []int
}

// intSet is a free-GPU working set the placement pass consumes as it assigns.
type intSet map[int]struct{}

func newIntSet(ids []int) intSet {
	s := make(intSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (s intSet) subsetOf(free intSet) bool {
	for id := range s {
		if _, ok := free[id]; !ok {
			return false
		}
	}
	return true
}

// sortedAscending returns the free set's ids in ascending order, for the
// deterministic "first N by ascending id" rule of spec.md step 2.
func (s intSet) sortedAscending() []int {
	out := make([]int, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Ints(out)
	return out
}

// decidePlacement runs a single pass per spec.md §4.D:
//  1. Dequeue the head job repeatedly.
//  2. A pinned job (GPUIDs set) is feasible iff its GPUIDs are a subset of
//     the free set; otherwise it is deferred.
//  3. An unpinned job is feasible iff enough free GPUs remain, and is
//     assigned the lowest-id GPUs first for determinism.
//  4. Assigned GPUs are removed from the free set; the pass stops once the
//     free set is empty.
//  5. Every entry examined but not assigned is deferred, in original order.
//
// jobByID returns nil for a job id no longer present. Entries whose job is
// unknown or no longer StatusQueued are silently dropped, never deferred.
func decidePlacement(free intSet, drained []entry, jobByID func(string) *Job) ([]LaunchInstruction, []entry) {
	var launches []LaunchInstruction
	var deferred []entry

	for _, e := range drained {
		job := jobByID(e.jobID)
		if job == nil || job.Status != StatusQueued {
			// Dropped: cancelled or otherwise no longer queued.
			continue
		}

		if len(free) == 0 {
			// No capacity left this pass; everything remaining is deferred
			// in original order, including this entry.
			deferred = append(deferred, e)
			continue
		}

		if len(job.GPUIDs) > 0 {
			pinned := newIntSet(job.GPUIDs)
			if !pinned.subsetOf(free) {
				deferred = append(deferred, e)
				continue
			}
			assigned := append([]int(nil), job.GPUIDs...)
			sort.Ints(assigned)
			for _, id := range assigned {
				delete(free, id)
			}
			launches = append(launches, LaunchInstruction{JobID: job.JobID, AssignedGPUs: assigned})
			continue
		}

		want := job.NumGPUs
		if want < 1 {
			want = 1
		}
		if len(free) < want {
			deferred = append(deferred, e)
			continue
		}
		candidates := free.sortedAscending()
		assigned := append([]int(nil), candidates[:want]...)
		for _, id := range assigned {
			delete(free, id)
		}
		launches = append(launches, LaunchInstruction{JobID: job.JobID, AssignedGPUs: assigned})
	}

	return launches, deferred
}
