package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/rangeos/engine/internal/models"
	appErr "github.com/rangeos/engine/pkg/errors"
)

// UIStateRepository persists client-state slices per owner.
type UIStateRepository interface {
	// Find returns the slice for owner, or a not_found AppError.
	Find(ctx context.Context, owner, slice string) (*models.UIState, error)
	// Merge inserts (owner, slice) or overlays state.Touched onto the stored
	// object key by key, in one atomic write. state is updated with the
	// stored row, including the merged Touched.
	Merge(ctx context.Context, state *models.UIState) error
	// DeleteSlices removes the listed slices of owner, or all of them when
	// none are listed. Missing rows are fine.
	DeleteSlices(ctx context.Context, owner string, slices ...string) error
}

type uiStateRepository struct {
	db *gorm.DB
}

func NewUIStateRepository(db *gorm.DB) UIStateRepository {
	return &uiStateRepository{db: db}
}

func (r *uiStateRepository) Find(ctx context.Context, owner, slice string) (*models.UIState, error) {
	var out models.UIState
	err := r.db.WithContext(ctx).Where("owner = ? AND slice = ?", owner, slice).First(&out).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, appErr.New(appErr.CodeNotFound, "ui state not found").WithMeta("slice", slice)
		}
		return nil, appErr.Wrap(err, appErr.CodeInternal, "find ui state failed")
	}
	return &out, nil
}

func (r *uiStateRepository) Merge(ctx context.Context, state *models.UIState) error {
	if len(state.Touched) == 0 {
		state.Touched = []byte(`{}`)
	}
	err := r.db.WithContext(ctx).Clauses(
		clause.OnConflict{
			Columns: []clause.Column{{Name: "owner"}, {Name: "slice"}},
			DoUpdates: clause.Assignments(map[string]any{
				"touched":    gorm.Expr("ui_states.touched || EXCLUDED.touched"),
				"updated_at": gorm.Expr("EXCLUDED.updated_at"),
			}),
		},
		clause.Returning{},
	).Create(state).Error
	if err != nil {
		return appErr.Wrap(err, appErr.CodeInternal, "merge ui state failed")
	}
	return nil
}

func (r *uiStateRepository) DeleteSlices(ctx context.Context, owner string, slices ...string) error {
	q := r.db.WithContext(ctx).Where("owner = ?", owner)
	if len(slices) > 0 {
		q = q.Where("slice IN ?", slices)
	}
	if err := q.Delete(&models.UIState{}).Error; err != nil {
		return appErr.Wrap(err, appErr.CodeInternal, "delete ui state failed")
	}
	return nil
}
