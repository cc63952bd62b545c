package agro

import (
	"context"
	"fmt"
	"sync"
)

// PhaseRegistry is the sole writer of phase definitions. It enforces the
// per-hybrid capacity cap and range validation on create.
type PhaseRegistry struct {
	store PhaseStore

	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

// NewPhaseRegistry creates a registry backed by the given phase store.
func NewPhaseRegistry(store PhaseStore) *PhaseRegistry {
	return &PhaseRegistry{
		store: store,
		locks: make(map[int64]*sync.Mutex),
	}
}

// hybridLock returns the mutex serializing writes for one hybrid. The
// count-then-insert in CreatePhase is not atomic at the store level, so
// concurrent creates for the same hybrid must not interleave.
func (r *PhaseRegistry) hybridLock(hybridID int64) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.locks[hybridID]
	if !ok {
		l = &sync.Mutex{}
		r.locks[hybridID] = l
	}
	return l
}

// CreatePhase validates and persists a new phase definition for a hybrid.
// It fails with ErrPhaseCapacity once the hybrid holds MaxPhasesPerHybrid
// definitions and with ErrInvalidPhaseRange for negative or inverted ranges.
func (r *PhaseRegistry) CreatePhase(ctx context.Context, hybridID int64, phaseName string, gddFrom, gddTo float64) (*PhaseDefinition, error) {
	if gddFrom < 0 {
		return nil, fmt.Errorf("%w: gdd_from %.2f is negative", ErrInvalidPhaseRange, gddFrom)
	}
	if gddTo < gddFrom {
		return nil, fmt.Errorf("%w: gdd_to %.2f is below gdd_from %.2f", ErrInvalidPhaseRange, gddTo, gddFrom)
	}

	lock := r.hybridLock(hybridID)
	lock.Lock()
	defer lock.Unlock()

	count, err := r.store.CountPhases(ctx, hybridID)
	if err != nil {
		return nil, fmt.Errorf("count phases for hybrid %d: %w", hybridID, err)
	}
	if count >= MaxPhasesPerHybrid {
		return nil, fmt.Errorf("%w: hybrid %d already has %d phases", ErrPhaseCapacity, hybridID, count)
	}

	phase := &PhaseDefinition{
		HybridID:  hybridID,
		PhaseName: phaseName,
		GDDFrom:   gddFrom,
		GDDTo:     gddTo,
	}
	if err := r.store.InsertPhase(ctx, phase); err != nil {
		return nil, fmt.Errorf("insert phase for hybrid %d: %w", hybridID, err)
	}

	return phase, nil
}

// ListPhases returns the hybrid's phase definitions ordered by GDDFrom
// ascending, ready to feed EvaluatePhases. A hybrid without phases yields an
// empty list, not an error.
func (r *PhaseRegistry) ListPhases(ctx context.Context, hybridID int64) ([]PhaseDefinition, error) {
	phases, err := r.store.PhasesForHybrid(ctx, hybridID)
	if err != nil {
		return nil, fmt.Errorf("list phases for hybrid %d: %w", hybridID, err)
	}
	return phases, nil
}
