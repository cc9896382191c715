package fleet

import (
	"github.com/skylift-io/dispatch-go/internal/cabin"
	"github.com/skylift-io/dispatch-go/internal/domain"
	"github.com/skylift-io/dispatch-go/internal/plan"
)

// MostPossibleAssignments enumerates assignments distributing every tracked
// request across the cabins, preferring assignments that use as many cabins
// as possible: with spare requests, no cabin is left idle. Enumeration order
// is deterministic (ascending cabin ids, lexicographic placement), so ties in
// downstream scoring resolve reproducibly.
func (f *Fleet) MostPossibleAssignments() []Assignment {
	f.mu.RLock()
	ids := f.idsLocked()
	requests := make([]domain.DirectedFloor, len(f.order))
	copy(requests, f.order)
	f.mu.RUnlock()

	maxUsed := len(ids)
	if len(requests) < maxUsed {
		maxUsed = len(requests)
	}

	var out []Assignment
	placement := make([]int, len(requests))

	var walk func(pos, minIdx int)
	walk = func(pos, minIdx int) {
		if pos == len(requests) {
			distinct := make(map[int]struct{}, len(placement))
			for _, eid := range placement {
				distinct[eid] = struct{}{}
			}
			if len(distinct) < maxUsed {
				return
			}
			assignment := make(Assignment, len(ids))
			for _, eid := range ids {
				assignment[eid] = make(map[domain.DirectedFloor]struct{})
			}
			for i, eid := range placement {
				assignment[eid][requests[i]] = struct{}{}
			}
			out = append(out, assignment)
			return
		}
		for i := minIdx; i < len(ids); i++ {
			placement[pos] = ids[i]
			walk(pos+1, i)
		}
	}

	if len(requests) == 0 {
		assignment := make(Assignment, len(ids))
		for _, eid := range ids {
			assignment[eid] = make(map[domain.DirectedFloor]struct{})
		}
		return []Assignment{assignment}
	}

	walk(0, 0)
	return out
}

// simulatePlans builds, per cabin, a cloned plan with the candidate
// assignment's hall calls swapped in for the currently owned ones. Live plans
// are never touched.
func (f *Fleet) simulatePlans(assignment Assignment) map[int]*plan.Chains {
	f.mu.RLock()
	defer f.mu.RUnlock()

	sims := make(map[int]*plan.Chains, len(f.cabins))
	for eid, c := range f.cabins {
		clone := c.Plan().Clone()

		for req := range f.byCabin[eid] {
			if _, keep := assignment[eid][req]; keep {
				continue
			}
			if clone.Contains(req) {
				_ = clone.Remove(req)
			}
		}
		for req := range assignment[eid] {
			if _, owned := f.byCabin[eid][req]; owned {
				continue
			}
			if !clone.Contains(req) {
				_ = clone.Add(req, c.DirectionTo(req.Floor))
			}
		}
		sims[eid] = clone
	}
	return sims
}

// OptimalAssign evaluates every candidate assignment and returns the one
// minimising the slowest cabin's completion time, together with the cabin
// that should take the new request (when one is given). This is the full
// minimax over assignments.
func (f *Fleet) OptimalAssign(request *domain.DirectedFloor, heuristic domain.Heuristic) (int, Assignment, bool) {
	f.mu.RLock()
	ids := f.idsLocked()
	cabins := make(map[int]*cabin.Cabin, len(ids))
	for _, id := range ids {
		cabins[id] = f.cabins[id]
	}
	f.mu.RUnlock()

	if len(ids) == 0 {
		return 0, nil, false
	}

	var (
		bestAssignment Assignment
		bestEid        int
		bestScore      float64
		found          bool
	)

	for _, assignment := range f.MostPossibleAssignments() {
		sims := f.simulatePlans(assignment)

		base := make(map[int]float64, len(ids))
		for _, id := range ids {
			base[id] = cabins[id].EstimateWithPlan(sims[id], nil, heuristic)
		}

		score := 0.0
		targetEid := 0
		if request == nil {
			for _, d := range base {
				if d > score {
					score = d
				}
			}
		} else {
			firstTarget := true
			for _, target := range ids {
				worst := 0.0
				for _, id := range ids {
					var d float64
					if id == target {
						d = cabins[id].EstimateWithPlan(sims[id], request, heuristic)
					} else {
						d = base[id]
					}
					if d > worst {
						worst = d
					}
				}
				if firstTarget || worst < score {
					score = worst
					targetEid = target
					firstTarget = false
				}
			}
		}

		if !found || score < bestScore {
			bestScore = score
			bestAssignment = assignment
			bestEid = targetEid
			found = true
		}
	}

	return bestEid, bestAssignment, found
}
