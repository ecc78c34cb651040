package types

import "github.com/rangeos/engine/internal/services"

type AccordionUpdateRequest struct {
	Expanded *bool `json:"expanded" validate:"required"`
}

type DashboardRequest struct {
	Categories []services.Category `json:"categories" validate:"required,dive"`
}
