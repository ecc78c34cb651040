package repository

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/rangeos/engine/internal/models"
	appErr "github.com/rangeos/engine/pkg/errors"
)

// MemoryUIStateRepository keeps UI state in process memory. It is used when
// no database is configured and in tests.
type MemoryUIStateRepository struct {
	mu   sync.RWMutex
	rows map[uuid.UUID]models.UIState
	now  func() time.Time
}

func NewMemoryUIStateRepository() *MemoryUIStateRepository {
	return &MemoryUIStateRepository{rows: make(map[uuid.UUID]models.UIState), now: time.Now}
}

func (r *MemoryUIStateRepository) Find(ctx context.Context, owner, slice string) (*models.UIState, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	row, ok := r.findLocked(owner, slice)
	if !ok {
		return nil, appErr.New(appErr.CodeNotFound, "ui state not found").WithMeta("slice", slice)
	}
	out := clone(row)
	return &out, nil
}

// Merge overlays state.Touched onto the stored object under the write lock.
func (r *MemoryUIStateRepository) Merge(ctx context.Context, state *models.UIState) error {
	patch := map[string]any{}
	if len(state.Touched) > 0 {
		if err := json.Unmarshal(state.Touched, &patch); err != nil {
			return appErr.Wrap(err, appErr.CodeInvalid, "touched must be a json object")
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	merged := map[string]any{}
	if row, ok := r.findLocked(state.Owner, state.Slice); ok {
		if len(row.Touched) > 0 {
			if err := json.Unmarshal(row.Touched, &merged); err != nil {
				return appErr.Wrap(err, appErr.CodeInternal, "decode ui state failed")
			}
		}
		state.ID, state.CreatedAt = row.ID, row.CreatedAt
	} else {
		if state.ID == uuid.Nil {
			state.ID = uuid.New()
		}
		state.CreatedAt = now
	}
	for k, v := range patch {
		merged[k] = v
	}
	raw, err := json.Marshal(merged)
	if err != nil {
		return appErr.Wrap(err, appErr.CodeInternal, "encode ui state failed")
	}
	state.Touched = datatypes.JSON(raw)
	state.UpdatedAt = now
	r.rows[state.ID] = clone(*state)
	return nil
}

func (r *MemoryUIStateRepository) DeleteSlices(ctx context.Context, owner string, slices ...string) error {
	want := make(map[string]bool, len(slices))
	for _, s := range slices {
		want[s] = true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, row := range r.rows {
		if row.Owner == owner && (len(want) == 0 || want[row.Slice]) {
			delete(r.rows, id)
		}
	}
	return nil
}

func (r *MemoryUIStateRepository) findLocked(owner, slice string) (models.UIState, bool) {
	for _, row := range r.rows {
		if row.Owner == owner && row.Slice == slice {
			return row, true
		}
	}
	return models.UIState{}, false
}

func clone(s models.UIState) models.UIState {
	if s.Touched != nil {
		s.Touched = append(datatypes.JSON(nil), s.Touched...)
	}
	return s
}

var _ UIStateRepository = (*MemoryUIStateRepository)(nil)
