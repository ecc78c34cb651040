package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Persisted UI slices.
const (
	SliceAccordion = "accordion"
)

// UIState is one persisted client-state slice for one owner, e.g. the
// accordion expand/collapse flags keyed by category id.
type UIState struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	Owner     string         `gorm:"type:varchar(255);not null;index:idx_ui_states_owner_slice,unique" json:"owner" validate:"required"`
	Slice     string         `gorm:"type:varchar(64);not null;index:idx_ui_states_owner_slice,unique" json:"slice" validate:"required"`
	Touched   datatypes.JSON `gorm:"type:jsonb" json:"touched"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// TableName pins the table name used by migrations.
func (UIState) TableName() string { return "ui_states" }
