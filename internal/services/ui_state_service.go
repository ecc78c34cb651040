package services

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/rangeos/engine/internal/models"
	"github.com/rangeos/engine/internal/repository"
	appErr "github.com/rangeos/engine/pkg/errors"
	"github.com/rangeos/engine/pkg/logger"
)

// UIStateService manages the persisted dashboard accordion and renders the
// two-level category to card menu.
type UIStateService interface {
	// Touched returns the expand flags the owner has set, by category id.
	Touched(ctx context.Context, owner string) (map[string]bool, error)
	// SetTouched records one category as expanded or collapsed and returns
	// the updated map.
	SetTouched(ctx context.Context, owner, categoryID string, expanded bool) (map[string]bool, error)
	// ResetPersistence clears every persisted slice of owner.
	ResetPersistence(ctx context.Context, owner string) error
	// Menu renders categories with their expand state.
	Menu(ctx context.Context, owner string, categories []Category) ([]MenuSection, error)
}

// Card is one dashboard link.
type Card struct {
	ID     string `json:"id" validate:"required"`
	Name   string `json:"name" validate:"required"`
	Path   string `json:"path,omitempty"`
	Hidden bool   `json:"hidden,omitempty"`
}

// Category groups cards under one accordion header.
type Category struct {
	ID    string `json:"id" validate:"required"`
	Name  string `json:"name" validate:"required"`
	Cards []Card `json:"cards" validate:"dive"`
}

// MenuSection is a rendered category.
type MenuSection struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Expanded bool   `json:"expanded"`
	Cards    []Card `json:"cards"`
}

// ResetHandler clears one slice for owner.
type ResetHandler func(ctx context.Context, owner string) error

// ResetBus fans a persistence reset out to every registered slice.
type ResetBus struct {
	mu       sync.Mutex
	names    []string
	handlers []ResetHandler
}

func NewResetBus() *ResetBus { return &ResetBus{} }

// Register adds a slice to the reset fan-out.
func (b *ResetBus) Register(name string, h ResetHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.names = append(b.names, name)
	b.handlers = append(b.handlers, h)
}

// Reset runs every handler and joins their errors.
func (b *ResetBus) Reset(ctx context.Context, owner string) error {
	b.mu.Lock()
	names := append([]string(nil), b.names...)
	handlers := append([]ResetHandler(nil), b.handlers...)
	b.mu.Unlock()

	var errs []error
	for i, h := range handlers {
		if err := h(ctx, owner); err != nil {
			logger.L().Warn("slice reset failed", zap.String("slice", names[i]), zap.String("owner", owner), zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type uiStateService struct {
	repo repository.UIStateRepository
	bus  *ResetBus
	now  func() time.Time
}

// NewUIStateService creates the service and registers the accordion slice on bus.
func NewUIStateService(repo repository.UIStateRepository, bus *ResetBus) UIStateService {
	if bus == nil {
		bus = NewResetBus()
	}
	s := &uiStateService{repo: repo, bus: bus, now: time.Now}
	bus.Register(models.SliceAccordion, func(ctx context.Context, owner string) error {
		return repo.DeleteSlices(ctx, owner, models.SliceAccordion)
	})
	return s
}

func (s *uiStateService) Touched(ctx context.Context, owner string) (map[string]bool, error) {
	if strings.TrimSpace(owner) == "" {
		return nil, appErr.New(appErr.CodeInvalid, "owner is required")
	}
	row, err := s.repo.Find(ctx, owner, models.SliceAccordion)
	if err != nil {
		if appErr.IsCode(err, appErr.CodeNotFound) {
			return map[string]bool{}, nil
		}
		return nil, err
	}
	return decodeTouched(row.Touched)
}

func (s *uiStateService) SetTouched(ctx context.Context, owner, categoryID string, expanded bool) (map[string]bool, error) {
	if strings.TrimSpace(owner) == "" {
		return nil, appErr.New(appErr.CodeInvalid, "owner is required")
	}
	if strings.TrimSpace(categoryID) == "" {
		return nil, appErr.New(appErr.CodeInvalid, "category id is required")
	}

	// Only the changed flag is written. The repository merges it into the
	// stored map so concurrent writers to other categories are kept.
	raw, err := json.Marshal(map[string]bool{categoryID: expanded})
	if err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInternal, "encode accordion state failed")
	}
	state := &models.UIState{
		Owner:     owner,
		Slice:     models.SliceAccordion,
		Touched:   datatypes.JSON(raw),
		UpdatedAt: s.now(),
	}
	if err := s.repo.Merge(ctx, state); err != nil {
		return nil, err
	}
	logger.L().Debug("accordion updated",
		zap.String("owner", owner),
		zap.String("category", categoryID),
		zap.Bool("expanded", expanded),
	)
	return decodeTouched(state.Touched)
}

func (s *uiStateService) ResetPersistence(ctx context.Context, owner string) error {
	if strings.TrimSpace(owner) == "" {
		return appErr.New(appErr.CodeInvalid, "owner is required")
	}
	if err := s.bus.Reset(ctx, owner); err != nil {
		return appErr.Wrap(err, appErr.CodeInternal, "reset persistence failed")
	}
	logger.L().Info("persistence reset", zap.String("owner", owner))
	return nil
}

func (s *uiStateService) Menu(ctx context.Context, owner string, categories []Category) ([]MenuSection, error) {
	touched, err := s.Touched(ctx, owner)
	if err != nil {
		return nil, err
	}
	out := make([]MenuSection, 0, len(categories))
	for _, c := range categories {
		expanded, ok := touched[c.ID]
		if !ok {
			expanded = true
		}
		cards := make([]Card, 0, len(c.Cards))
		for _, card := range c.Cards {
			if !card.Hidden {
				cards = append(cards, card)
			}
		}
		sort.SliceStable(cards, func(i, j int) bool {
			return strings.ToLower(cards[i].Name) < strings.ToLower(cards[j].Name)
		})
		out = append(out, MenuSection{ID: c.ID, Name: c.Name, Expanded: expanded, Cards: cards})
	}
	return out, nil
}

func decodeTouched(raw datatypes.JSON) (map[string]bool, error) {
	out := map[string]bool{}
	if len(raw) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInternal, "decode accordion state failed")
	}
	return out, nil
}
