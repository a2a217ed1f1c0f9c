package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/garyjia/cost-reconciler/internal/application/port"
	"github.com/garyjia/cost-reconciler/internal/domain/entity"
)

// MappingService maintains the invoice line item to estimate line item mappings
type MappingService interface {
	// UpsertMapping atomically replaces or inserts the mapping of one invoice line item
	UpsertMapping(ctx context.Context, mapping *entity.Mapping) error

	// ApplyMatch writes a batch decision unless the item's current mapping must
	// be kept: manual mappings always are, other mappings unless replace is set.
	// It reports whether the mapping was written.
	ApplyMatch(ctx context.Context, mapping *entity.Mapping, replace bool) (bool, error)

	// ClearMapping removes the mapping of one invoice line item, if any
	ClearMapping(ctx context.Context, invoiceLineItemID int64) error

	// GetMappingsForInvoice returns the invoice's mappings joined with their trades
	GetMappingsForInvoice(ctx context.Context, invoiceID int64) ([]*entity.MappingView, error)

	// AssignManual maps an invoice line item by hand and records the correction
	AssignManual(ctx context.Context, invoiceLineItemID, estimateLineItemID int64) (*entity.Mapping, error)
}

type mappingServiceImpl struct {
	mappingRepo    port.MappingRepository
	invoiceRepo    port.InvoiceRepository
	estimateRepo   port.EstimateRepository
	correctionRepo port.CorrectionRepository
	txManager      port.TransactionManager
	locker         port.ItemLocker
	logger         Logger
}

// NewMappingService creates a new MappingService
func NewMappingService(
	mappingRepo port.MappingRepository,
	invoiceRepo port.InvoiceRepository,
	estimateRepo port.EstimateRepository,
	correctionRepo port.CorrectionRepository,
	txManager port.TransactionManager,
	locker port.ItemLocker,
	logger Logger,
) MappingService {
	return &mappingServiceImpl{
		mappingRepo:    mappingRepo,
		invoiceRepo:    invoiceRepo,
		estimateRepo:   estimateRepo,
		correctionRepo: correctionRepo,
		txManager:      txManager,
		locker:         locker,
		logger:         logger,
	}
}

// lockKey names the per-item lock shared by every writer of a mapping
func lockKey(invoiceLineItemID int64) string {
	return "invoice-line-item:" + strconv.FormatInt(invoiceLineItemID, 10)
}

// withItemLock runs fn in a transaction while holding the item's lock
func (s *mappingServiceImpl) withItemLock(ctx context.Context, invoiceLineItemID int64, fn func(ctx context.Context) error) error {
	unlock, err := s.locker.Lock(ctx, lockKey(invoiceLineItemID))
	if err != nil {
		return fmt.Errorf("lock invoice line item %d: %w", invoiceLineItemID, err)
	}
	defer unlock()

	return s.txManager.WithTransaction(ctx, fn)
}

// UpsertMapping atomically replaces or inserts a mapping
func (s *mappingServiceImpl) UpsertMapping(ctx context.Context, mapping *entity.Mapping) error {
	if err := mapping.Validate(); err != nil {
		return err
	}

	err := s.withItemLock(ctx, mapping.InvoiceLineItemID, func(txCtx context.Context) error {
		if err := s.mappingRepo.Upsert(txCtx, mapping); err != nil {
			return fmt.Errorf("upsert mapping: %w", err)
		}
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to upsert mapping", "error", err,
			"invoice_line_item_id", mapping.InvoiceLineItemID,
			"estimate_line_item_id", mapping.EstimateLineItemID)
		return err
	}

	return nil
}

// ApplyMatch re-reads the current mapping under the item lock, so a mapping
// written after the batch loaded its inputs is seen here
func (s *mappingServiceImpl) ApplyMatch(ctx context.Context, mapping *entity.Mapping, replace bool) (bool, error) {
	if err := mapping.Validate(); err != nil {
		return false, err
	}

	applied := false
	err := s.withItemLock(ctx, mapping.InvoiceLineItemID, func(txCtx context.Context) error {
		current, err := s.mappingRepo.GetByInvoiceLineItemID(txCtx, mapping.InvoiceLineItemID)
		if err != nil {
			return fmt.Errorf("get current mapping: %w", err)
		}
		if current != nil && (current.Method == entity.MatchMethodManual || !replace) {
			return nil
		}
		if err := s.mappingRepo.Upsert(txCtx, mapping); err != nil {
			return fmt.Errorf("upsert mapping: %w", err)
		}
		applied = true
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to apply match", "error", err,
			"invoice_line_item_id", mapping.InvoiceLineItemID,
			"estimate_line_item_id", mapping.EstimateLineItemID)
		return false, err
	}

	return applied, nil
}

// ClearMapping removes a mapping; clearing an unmapped item is not an error
func (s *mappingServiceImpl) ClearMapping(ctx context.Context, invoiceLineItemID int64) error {
	item, err := s.invoiceRepo.GetLineItem(ctx, invoiceLineItemID)
	if err != nil {
		return fmt.Errorf("get invoice line item: %w", err)
	}
	if item == nil {
		return fmt.Errorf("%w: invoice line item %d", ErrNotFound, invoiceLineItemID)
	}

	err = s.withItemLock(ctx, invoiceLineItemID, func(txCtx context.Context) error {
		return s.mappingRepo.Delete(txCtx, invoiceLineItemID)
	})
	if err != nil {
		s.logger.Error("Failed to clear mapping", "error", err, "invoice_line_item_id", invoiceLineItemID)
		return fmt.Errorf("clear mapping: %w", err)
	}

	s.logger.Info("Mapping cleared", "invoice_line_item_id", invoiceLineItemID)
	return nil
}

// GetMappingsForInvoice returns the mappings of every line item of an invoice
func (s *mappingServiceImpl) GetMappingsForInvoice(ctx context.Context, invoiceID int64) ([]*entity.MappingView, error) {
	invoice, err := s.invoiceRepo.GetByID(ctx, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("get invoice: %w", err)
	}
	if invoice == nil {
		return nil, fmt.Errorf("%w: invoice %d", ErrNotFound, invoiceID)
	}

	views, err := s.mappingRepo.ListViewsByInvoice(ctx, invoiceID)
	if err != nil {
		s.logger.Error("Failed to list mappings", "error", err, "invoice_id", invoiceID)
		return nil, fmt.Errorf("list mappings: %w", err)
	}
	return views, nil
}

// AssignManual forces a mapping with confidence 1.0 and appends a correction
// so later batches can learn from it
func (s *mappingServiceImpl) AssignManual(ctx context.Context, invoiceLineItemID, estimateLineItemID int64) (*entity.Mapping, error) {
	item, err := s.invoiceRepo.GetLineItem(ctx, invoiceLineItemID)
	if err != nil {
		return nil, fmt.Errorf("get invoice line item: %w", err)
	}
	if item == nil {
		return nil, fmt.Errorf("%w: invoice line item %d", ErrNotFound, invoiceLineItemID)
	}

	est, err := s.estimateRepo.GetByID(ctx, estimateLineItemID)
	if err != nil {
		return nil, fmt.Errorf("get estimate line item: %w", err)
	}
	if est == nil {
		return nil, fmt.Errorf("%w: estimate line item %d", ErrNotFound, estimateLineItemID)
	}

	if est.ProjectID != item.ProjectID {
		return nil, fmt.Errorf("%w: estimate line item %d belongs to project %d, invoice line item %d to project %d",
			ErrValidation, est.ID, est.ProjectID, item.ID, item.ProjectID)
	}

	mapping := &entity.Mapping{
		InvoiceLineItemID:  invoiceLineItemID,
		EstimateLineItemID: estimateLineItemID,
		Confidence:         1.0,
		Method:             entity.MatchMethodManual,
		Reasoning:          "assigned manually",
	}

	correction := &entity.MatchCorrection{
		ProjectID:         item.ProjectID,
		InvoiceLineItemID: invoiceLineItemID,
		OriginalField:     entity.CorrectionFieldDescription,
		OriginalValue:     item.Description,
		CorrectedValue:    strconv.FormatInt(estimateLineItemID, 10),
		CreatedAt:         time.Now(),
	}

	err = s.withItemLock(ctx, invoiceLineItemID, func(txCtx context.Context) error {
		if err := s.mappingRepo.Upsert(txCtx, mapping); err != nil {
			return fmt.Errorf("upsert mapping: %w", err)
		}
		if err := s.correctionRepo.Append(txCtx, correction); err != nil {
			return fmt.Errorf("append correction: %w", err)
		}
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to assign mapping", "error", err,
			"invoice_line_item_id", invoiceLineItemID, "estimate_line_item_id", estimateLineItemID)
		return nil, err
	}

	s.logger.Info("Mapping assigned manually",
		"invoice_line_item_id", invoiceLineItemID, "estimate_line_item_id", estimateLineItemID)
	return mapping, nil
}
