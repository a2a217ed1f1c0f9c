package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/garyjia/cost-reconciler/internal/application/port"
	"github.com/garyjia/cost-reconciler/internal/domain/entity"
)

// IngestionService stores the estimate tree and parsed invoices the engine reconciles
type IngestionService interface {
	CreateProject(ctx context.Context, name string) (*entity.Project, error)
	CreateTrade(ctx context.Context, trade *entity.Trade) error

	// DeleteEstimateLineItem removes an estimate line item. Invoice line items
	// mapped to it are kept and become unmapped.
	DeleteEstimateLineItem(ctx context.Context, id int64) error

	// IngestInvoice stores a parsed invoice and its line items
	IngestInvoice(ctx context.Context, invoice *entity.Invoice) error
	UpdateInvoiceStatus(ctx context.Context, invoiceID int64, status entity.InvoiceStatus) error
}

type ingestionServiceImpl struct {
	projectRepo  port.ProjectRepository
	tradeRepo    port.TradeRepository
	estimateRepo port.EstimateRepository
	invoiceRepo  port.InvoiceRepository
	txManager    port.TransactionManager
	tolerance    decimal.Decimal
	logger       Logger
}

// NewIngestionService creates a new IngestionService. tolerance bounds the gap
// between an invoice line's total and quantity*unitPrice.
func NewIngestionService(
	projectRepo port.ProjectRepository,
	tradeRepo port.TradeRepository,
	estimateRepo port.EstimateRepository,
	invoiceRepo port.InvoiceRepository,
	txManager port.TransactionManager,
	tolerance decimal.Decimal,
	logger Logger,
) IngestionService {
	return &ingestionServiceImpl{
		projectRepo:  projectRepo,
		tradeRepo:    tradeRepo,
		estimateRepo: estimateRepo,
		invoiceRepo:  invoiceRepo,
		txManager:    txManager,
		tolerance:    tolerance,
		logger:       logger,
	}
}

// CreateProject creates a new project
func (s *ingestionServiceImpl) CreateProject(ctx context.Context, name string) (*entity.Project, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("%w: project name is required", ErrValidation)
	}

	project := &entity.Project{Name: name, CreatedAt: time.Now()}
	if err := s.projectRepo.Create(ctx, project); err != nil {
		s.logger.Error("Failed to create project", "error", err, "name", name)
		return nil, fmt.Errorf("create project: %w", err)
	}

	s.logger.Info("Project created", "id", project.ID, "name", name)
	return project, nil
}

func (s *ingestionServiceImpl) requireProject(ctx context.Context, projectID int64) error {
	project, err := s.projectRepo.GetByID(ctx, projectID)
	if err != nil {
		return fmt.Errorf("get project: %w", err)
	}
	if project == nil {
		return fmt.Errorf("%w: project %d", ErrNotFound, projectID)
	}
	return nil
}

// CreateTrade creates a trade with its estimate line items in one transaction
func (s *ingestionServiceImpl) CreateTrade(ctx context.Context, trade *entity.Trade) error {
	if strings.TrimSpace(trade.Name) == "" {
		return fmt.Errorf("%w: trade name is required", ErrValidation)
	}
	for i, li := range trade.LineItems {
		if err := li.Validate(); err != nil {
			return fmt.Errorf("line item %d: %w", i, err)
		}
	}
	if err := s.requireProject(ctx, trade.ProjectID); err != nil {
		return err
	}

	now := time.Now()
	trade.CreatedAt = now
	for _, li := range trade.LineItems {
		li.CreatedAt = now
	}

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		return s.tradeRepo.Create(txCtx, trade)
	})
	if err != nil {
		s.logger.Error("Failed to create trade", "error", err, "project_id", trade.ProjectID)
		return fmt.Errorf("create trade: %w", err)
	}

	s.logger.Info("Trade created", "id", trade.ID, "project_id", trade.ProjectID, "line_items", len(trade.LineItems))
	return nil
}

// DeleteEstimateLineItem deletes an estimate line item
func (s *ingestionServiceImpl) DeleteEstimateLineItem(ctx context.Context, id int64) error {
	est, err := s.estimateRepo.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("get estimate line item: %w", err)
	}
	if est == nil {
		return fmt.Errorf("%w: estimate line item %d", ErrNotFound, id)
	}

	if err := s.estimateRepo.Delete(ctx, id); err != nil {
		s.logger.Error("Failed to delete estimate line item", "error", err, "id", id)
		return fmt.Errorf("delete estimate line item: %w", err)
	}

	s.logger.Info("Estimate line item deleted", "id", id, "project_id", est.ProjectID)
	return nil
}

// IngestInvoice validates and stores an invoice with its line items
func (s *ingestionServiceImpl) IngestInvoice(ctx context.Context, invoice *entity.Invoice) error {
	if invoice.Status == "" {
		invoice.Status = entity.InvoiceStatusPending
	}
	if err := invoice.Validate(s.tolerance); err != nil {
		return err
	}
	if err := s.requireProject(ctx, invoice.ProjectID); err != nil {
		return err
	}

	if invoice.TradeID != nil {
		trade, err := s.tradeRepo.GetByID(ctx, *invoice.TradeID)
		if err != nil {
			return fmt.Errorf("get trade: %w", err)
		}
		if trade == nil || trade.ProjectID != invoice.ProjectID {
			return fmt.Errorf("%w: trade %d is not part of project %d", ErrValidation, *invoice.TradeID, invoice.ProjectID)
		}
	}

	now := time.Now()
	invoice.CreatedAt = now
	invoice.UpdatedAt = now
	for _, li := range invoice.LineItems {
		li.CreatedAt = now
	}

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		return s.invoiceRepo.Create(txCtx, invoice)
	})
	if err != nil {
		s.logger.Error("Failed to ingest invoice", "error", err, "project_id", invoice.ProjectID,
			"invoice_number", invoice.InvoiceNumber)
		return fmt.Errorf("ingest invoice: %w", err)
	}

	s.logger.Info("Invoice ingested", "id", invoice.ID, "project_id", invoice.ProjectID,
		"line_items", len(invoice.LineItems), "status", invoice.Status)
	return nil
}

// UpdateInvoiceStatus changes an invoice's approval state. Mappings are untouched;
// the next cost-tracking computation reflects the new status.
func (s *ingestionServiceImpl) UpdateInvoiceStatus(ctx context.Context, invoiceID int64, status entity.InvoiceStatus) error {
	if !status.Valid() {
		return fmt.Errorf("%w: unknown invoice status %q", ErrValidation, status)
	}

	invoice, err := s.invoiceRepo.GetByID(ctx, invoiceID)
	if err != nil {
		return fmt.Errorf("get invoice: %w", err)
	}
	if invoice == nil {
		return fmt.Errorf("%w: invoice %d", ErrNotFound, invoiceID)
	}

	if err := s.invoiceRepo.UpdateStatus(ctx, invoiceID, status); err != nil {
		s.logger.Error("Failed to update invoice status", "error", err, "id", invoiceID)
		return fmt.Errorf("update invoice status: %w", err)
	}

	s.logger.Info("Invoice status updated", "id", invoiceID, "from", invoice.Status, "to", status)
	return nil
}
