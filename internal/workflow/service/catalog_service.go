package service

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/opendossier/dossier/internal/workflow/model"
)

// CatalogService manages the immutable step catalog of products. It is the
// gorm-backed implementation of CatalogProvider.
type CatalogService struct {
	db *gorm.DB
}

// NewCatalogService creates a new instance of CatalogService.
func NewCatalogService(db *gorm.DB) *CatalogService {
	return &CatalogService{db: db}
}

// GetStepsByProductIDInTx retrieves a product's steps ordered by position.
func (s *CatalogService) GetStepsByProductIDInTx(ctx context.Context, tx *gorm.DB, productID uuid.UUID) ([]model.Step, error) {
	if productID == uuid.Nil {
		return nil, fmt.Errorf("product ID cannot be nil")
	}

	var steps []model.Step
	result := tx.WithContext(ctx).Where("product_id = ?", productID).Order("position asc").Find(&steps)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to retrieve steps for product %s: %w", productID, result.Error)
	}
	return steps, nil
}

// GetStepsByProductID retrieves a product's ordered steps outside a transaction.
func (s *CatalogService) GetStepsByProductID(ctx context.Context, productID uuid.UUID) ([]model.Step, error) {
	return s.GetStepsByProductIDInTx(ctx, s.db, productID)
}

// GetStepByID retrieves a single catalog step.
func (s *CatalogService) GetStepByID(ctx context.Context, stepID uuid.UUID) (*model.Step, error) {
	if stepID == uuid.Nil {
		return nil, fmt.Errorf("step ID cannot be nil")
	}

	var step model.Step
	result := s.db.WithContext(ctx).First(&step, "id = ?", stepID)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("step %s not found", stepID)
		}
		return nil, fmt.Errorf("failed to retrieve step: %w", result.Error)
	}
	return &step, nil
}

// CreateSteps persists a product's step sequence after checking the catalog
// invariants: each step carries exactly one matching configuration block and
// positions are unique within the product.
func (s *CatalogService) CreateSteps(ctx context.Context, productID uuid.UUID, steps []model.Step) ([]model.Step, error) {
	if productID == uuid.Nil {
		return nil, fmt.Errorf("product ID cannot be nil")
	}
	if len(steps) == 0 {
		return []model.Step{}, nil
	}

	seenPositions := make(map[int]bool, len(steps))
	for i := range steps {
		steps[i].ProductID = productID
		if err := steps[i].ValidateConfig(); err != nil {
			return nil, err
		}
		if seenPositions[steps[i].Position] {
			return nil, fmt.Errorf("duplicate position %d in product %s catalog", steps[i].Position, productID)
		}
		seenPositions[steps[i].Position] = true
	}

	sort.Slice(steps, func(i, j int) bool { return steps[i].Position < steps[j].Position })

	if err := s.db.WithContext(ctx).Create(&steps).Error; err != nil {
		return nil, fmt.Errorf("failed to create catalog steps: %w", err)
	}
	return steps, nil
}
