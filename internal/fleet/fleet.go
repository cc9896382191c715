// Package fleet holds the collection of cabins and the mapping from each live
// hall-call request to its assigned cabin, supporting en-masse reassignment
// that preserves wake-event identity.
package fleet

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/skylift-io/dispatch-go/internal/cabin"
	"github.com/skylift-io/dispatch-go/internal/constants"
	"github.com/skylift-io/dispatch-go/internal/domain"
	"github.com/skylift-io/dispatch-go/metrics"
)

// Assignment maps cabin ids to the set of requests they own.
type Assignment map[int]map[domain.DirectedFloor]struct{}

// clone returns a deep copy of the assignment.
func (a Assignment) clone() Assignment {
	c := make(Assignment, len(a))
	for eid, set := range a {
		s := make(map[domain.DirectedFloor]struct{}, len(set))
		for req := range set {
			s[req] = struct{}{}
		}
		c[eid] = s
	}
	return c
}

// equal reports whether two assignments distribute the same requests the same
// way.
func (a Assignment) equal(b Assignment) bool {
	if len(a) != len(b) {
		return false
	}
	for eid, set := range a {
		other, ok := b[eid]
		if !ok || len(set) != len(other) {
			return false
		}
		for req := range set {
			if _, ok := other[req]; !ok {
				return false
			}
		}
	}
	return true
}

// Fleet is the cabin collection. byCabin and byRequest are mutual inverses:
// every tracked request appears in exactly one cabin's set.
type Fleet struct {
	mu sync.RWMutex

	cabins    map[int]*cabin.Cabin
	byCabin   Assignment
	byRequest map[domain.DirectedFloor]int
	events    map[domain.DirectedFloor]*cabin.WakeEvent
	order     []domain.DirectedFloor

	logger *slog.Logger
}

// New creates an empty fleet.
func New() *Fleet {
	return &Fleet{
		cabins:    make(map[int]*cabin.Cabin),
		byCabin:   make(Assignment),
		byRequest: make(map[domain.DirectedFloor]int),
		events:    make(map[domain.DirectedFloor]*cabin.WakeEvent),
		logger:    slog.With(slog.String("component", constants.ComponentFleet)),
	}
}

// Add registers a cabin with the fleet.
func (f *Fleet) Add(c *cabin.Cabin) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cabins[c.ID()] = c
	f.byCabin[c.ID()] = make(map[domain.DirectedFloor]struct{})
}

// Remove unregisters the cabin and returns it together with its live
// requests and their wake events, so the caller can re-commit them on
// survivors without waking any waiter.
func (f *Fleet) Remove(eid int) (*cabin.Cabin, map[domain.DirectedFloor]*cabin.WakeEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	c, ok := f.cabins[eid]
	if !ok {
		return nil, nil, domain.NewNotFoundError("cabin not in fleet", nil).
			WithContext("cabin", eid)
	}

	orphaned := make(map[domain.DirectedFloor]*cabin.WakeEvent)
	for req := range f.byCabin[eid] {
		orphaned[req] = f.events[req]
		delete(f.byRequest, req)
		delete(f.events, req)
		f.dropFromOrder(req)
		c.CancelCommit(req.Floor, req.Direction)
	}

	delete(f.cabins, eid)
	delete(f.byCabin, eid)
	return c, orphaned, nil
}

func (f *Fleet) dropFromOrder(req domain.DirectedFloor) {
	for i, r := range f.order {
		if r == req {
			f.order = append(f.order[:i], f.order[i+1:]...)
			return
		}
	}
}

// Get returns the cabin with the given id.
func (f *Fleet) Get(eid int) (*cabin.Cabin, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	c, ok := f.cabins[eid]
	return c, ok
}

// IDs returns the cabin ids in ascending order.
func (f *Fleet) IDs() []int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.idsLocked()
}

func (f *Fleet) idsLocked() []int {
	ids := make([]int, 0, len(f.cabins))
	for id := range f.cabins {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Cabins returns the cabins in ascending id order.
func (f *Fleet) Cabins() []*cabin.Cabin {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]*cabin.Cabin, 0, len(f.cabins))
	for _, id := range f.idsLocked() {
		out = append(out, f.cabins[id])
	}
	return out
}

// Len returns the number of cabins.
func (f *Fleet) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.cabins)
}

// HasRequest reports whether the request is already tracked.
func (f *Fleet) HasRequest(req domain.DirectedFloor) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.byRequest[req]
	return ok
}

// Requests returns the tracked requests in commit order.
func (f *Fleet) Requests() []domain.DirectedFloor {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]domain.DirectedFloor, len(f.order))
	copy(out, f.order)
	return out
}

// Owner returns the cabin owning the request.
func (f *Fleet) Owner(req domain.DirectedFloor) (int, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	eid, ok := f.byRequest[req]
	return eid, ok
}

// CommitFloor commits the request to the cabin and records the ownership
// mapping. An optional caller-provided event preserves wake identity across
// reassignment.
func (f *Fleet) CommitFloor(eid int, req domain.DirectedFloor, event *cabin.WakeEvent) (*cabin.WakeEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.commitFloorLocked(eid, req, event)
}

func (f *Fleet) commitFloorLocked(eid int, req domain.DirectedFloor, event *cabin.WakeEvent) (*cabin.WakeEvent, error) {
	c, ok := f.cabins[eid]
	if !ok {
		return nil, domain.NewNotFoundError("cabin not in fleet", nil).
			WithContext("cabin", eid)
	}

	wake, err := c.CommitFloorWithEvent(req.Floor, req.Direction, event)
	if err != nil {
		return nil, err
	}

	if _, tracked := f.byRequest[req]; !tracked {
		f.order = append(f.order, req)
	}
	f.byRequest[req] = eid
	f.events[req] = wake
	f.byCabin[eid][req] = struct{}{}
	return wake, nil
}

// CancelCommit removes the request from its owning cabin without signalling
// its wake event, and returns the event.
func (f *Fleet) CancelCommit(req domain.DirectedFloor) (*cabin.WakeEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cancelCommitLocked(req)
}

func (f *Fleet) cancelCommitLocked(req domain.DirectedFloor) (*cabin.WakeEvent, error) {
	eid, ok := f.byRequest[req]
	if !ok {
		return nil, domain.ErrNotPresent
	}
	event := f.events[req]
	delete(f.byRequest, req)
	delete(f.events, req)
	delete(f.byCabin[eid], req)
	f.dropFromOrder(req)
	f.cabins[eid].CancelCommit(req.Floor, req.Direction)
	return event, nil
}

// Reassign applies a new request-to-cabin assignment. The diff against the
// current assignment is computed; every migrated request is removed from its
// loser preserving its wake event and re-committed on the winner with the
// same event, so waiters are never spuriously woken. Tracked requests absent
// from the new assignment are cancelled without signalling. Unless strict is
// set, an identical assignment is a no-op.
func (f *Fleet) Reassign(assignment Assignment, strict bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !strict && f.byCabin.equal(assignment) {
		return nil
	}

	stashed := make(map[domain.DirectedFloor]*cabin.WakeEvent)

	for eid, owned := range f.byCabin {
		for req := range owned {
			target, stays := assignment[eid]
			if stays {
				if _, keep := target[req]; keep {
					continue
				}
			}
			event := f.events[req]
			f.cabins[eid].CancelCommit(req.Floor, req.Direction)
			delete(f.byRequest, req)
			delete(f.events, req)
			f.dropFromOrder(req)
			stashed[req] = event
		}
	}

	for eid, wanted := range assignment {
		if _, ok := f.cabins[eid]; !ok {
			return domain.NewNotFoundError("assignment references unknown cabin", nil).
				WithContext("cabin", eid)
		}
		for req := range wanted {
			if _, owned := f.byCabin[eid][req]; owned {
				if _, still := f.byRequest[req]; still {
					continue
				}
			}
			event, hasEvent := stashed[req]
			if !hasEvent {
				event = f.events[req]
			}
			delete(stashed, req)
			if _, err := f.commitFloorLocked(eid, req, event); err != nil {
				return err
			}
		}
		set := make(map[domain.DirectedFloor]struct{}, len(wanted))
		for req := range wanted {
			set[req] = struct{}{}
		}
		f.byCabin[eid] = set
	}

	// Cabins absent from the new assignment end up owning nothing.
	for eid := range f.byCabin {
		if _, ok := assignment[eid]; !ok {
			f.byCabin[eid] = make(map[domain.DirectedFloor]struct{})
		}
	}

	// Requests dropped from the assignment entirely: cancelled, not woken.
	for req := range stashed {
		f.dropFromOrder(req)
		f.logger.Debug("request dropped during reassignment", slog.String("request", req.String()))
	}
	return nil
}

// EstimateTotalDuration returns the minimax completion estimate. Without a
// request it is the slowest cabin's estimate for its current plan. With a
// request it evaluates, for every candidate cabin, the fleet-wide maximum
// when that cabin takes the request, and returns the best (estimate, cabin).
func (f *Fleet) EstimateTotalDuration(request *domain.DirectedFloor, heuristic domain.Heuristic) (float64, int) {
	f.mu.RLock()
	ids := f.idsLocked()
	cabins := make([]*cabin.Cabin, 0, len(ids))
	for _, id := range ids {
		cabins = append(cabins, f.cabins[id])
	}
	f.mu.RUnlock()

	base := make(map[int]float64, len(ids))
	for i, id := range ids {
		base[id] = cabins[i].EstimateTotalDuration(nil, heuristic)
	}

	if request == nil {
		worst := 0.0
		for _, d := range base {
			if d > worst {
				worst = d
			}
		}
		return worst, 0
	}

	bestEid := 0
	bestDuration := 0.0
	first := true
	for i, target := range ids {
		worst := 0.0
		for j, id := range ids {
			var d float64
			if id == target {
				d = cabins[j].EstimateTotalDuration(request, heuristic)
			} else {
				d = base[id]
			}
			if d > worst {
				worst = d
			}
		}
		if first || worst < bestDuration {
			bestDuration = worst
			bestEid = ids[i]
			first = false
		}
	}
	if first {
		metrics.IncError("no_cabins", constants.ComponentFleet)
		return 0, 0
	}
	return bestDuration, bestEid
}

// Snapshot returns a copy of the current assignment.
func (f *Fleet) Snapshot() Assignment {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.byCabin.clone()
}
