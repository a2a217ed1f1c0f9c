package service

import (
	"context"
	"fmt"
	"slices"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/garyjia/cost-reconciler/internal/application/port"
	"github.com/garyjia/cost-reconciler/internal/domain/entity"
	"github.com/garyjia/cost-reconciler/internal/matching"
)

// DefaultBatchSize bounds concurrent classifier calls when none is configured
const DefaultBatchSize = 5

// MatchRequest selects the invoice line items of a batch run
type MatchRequest struct {
	ProjectID int64

	// InvoiceLineItemIDs restricts the run to these items; empty means every
	// unmapped item of the project
	InvoiceLineItemIDs []int64

	// Rematch replaces existing logic/llm mappings instead of skipping them.
	// Manual mappings are never replaced by a batch run.
	Rematch bool

	// Statuses restricts the run to line items of invoices in these statuses;
	// empty means any status
	Statuses []entity.InvoiceStatus

	// ExcludeLineItemIDs are left out of the run
	ExcludeLineItemIDs []int64
}

// ProcessingDetails is the telemetry of a batch run
type ProcessingDetails struct {
	ProcessingTimeMs         int64   `json:"processingTimeMs"`
	AverageTimePerItem       float64 `json:"averageTimePerItem"`
	ThroughputItemsPerSecond float64 `json:"throughputItemsPerSecond"`
	LLMAttempts              int64   `json:"llmAttempts"`
	LLMMatches               int64   `json:"llmMatches"`
	LLMFailures              int64   `json:"llmFailures"`
	LogicMatches             int64   `json:"logicMatches"`
	PatternsUsed             int     `json:"patternsUsed"`
	BatchSize                int     `json:"batchSize"`
}

// ItemError reports a per-item failure that did not abort the batch
type ItemError struct {
	InvoiceLineID int64  `json:"invoiceLineId"`
	Error         string `json:"error"`
}

// BulkMatchingResult is the outcome of a batch run
type BulkMatchingResult struct {
	Success           bool                  `json:"success"`
	TotalInvoices     int                   `json:"totalInvoices"`
	TotalLineItems    int                   `json:"totalLineItems"`
	MatchedItems      int                   `json:"matchedItems"`
	UnmatchedItems    int                   `json:"unmatchedItems"`
	AverageConfidence float64               `json:"averageConfidence"`
	Matches           []*entity.MatchResult `json:"matches"`
	ProcessingDetails ProcessingDetails     `json:"processingDetails"`
	Errors            []ItemError           `json:"errors,omitempty"`

	// UnmatchedLineItemIDs are the items for which no candidate was accepted
	UnmatchedLineItemIDs []int64 `json:"unmatchedLineItemIds,omitempty"`
	Error             string                `json:"error,omitempty"`
}

// MatchingService drives the matcher over batches of invoice line items
type MatchingService interface {
	// MatchAll matches the selected items of a project and persists accepted
	// matches. Classifier and per-item persistence failures are reported in the
	// result; only failing to load the batch inputs returns an error.
	MatchAll(ctx context.Context, req MatchRequest) (*BulkMatchingResult, error)
}

type matchingServiceImpl struct {
	matcher        *matching.Matcher
	projectRepo    port.ProjectRepository
	invoiceRepo    port.InvoiceRepository
	estimateRepo   port.EstimateRepository
	correctionRepo port.CorrectionRepository
	mappings       MappingService
	batchSize      int
	logger         Logger
}

// NewMatchingService creates a new MatchingService
func NewMatchingService(
	matcher *matching.Matcher,
	projectRepo port.ProjectRepository,
	invoiceRepo port.InvoiceRepository,
	estimateRepo port.EstimateRepository,
	correctionRepo port.CorrectionRepository,
	mappings MappingService,
	batchSize int,
	logger Logger,
) MatchingService {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &matchingServiceImpl{
		matcher:        matcher,
		projectRepo:    projectRepo,
		invoiceRepo:    invoiceRepo,
		estimateRepo:   estimateRepo,
		correctionRepo: correctionRepo,
		mappings:       mappings,
		batchSize:      batchSize,
		logger:         logger,
	}
}

// batchInputs is everything a run reads before matching starts
type batchInputs struct {
	items        []*entity.InvoiceLineItem
	candidates   []*entity.EstimateLineItem
	patterns     *matching.PatternSet
	patternsUsed int
}

// MatchAll runs the heuristic stage inline for every item, fans inconclusive
// items out to the classifier and commits the decisions after fan-in
func (s *matchingServiceImpl) MatchAll(ctx context.Context, req MatchRequest) (*BulkMatchingResult, error) {
	start := time.Now()
	runID := uuid.New().String()

	inputs, err := s.load(ctx, req)
	if err != nil {
		s.logger.Error("Failed to load batch", "error", err, "run_id", runID, "project_id", req.ProjectID)
		return nil, err
	}

	s.logger.Info("Batch matching started",
		"run_id", runID,
		"project_id", req.ProjectID,
		"line_items", len(inputs.items),
		"candidates", len(inputs.candidates),
		"patterns", inputs.patternsUsed,
		"rematch", req.Rematch)

	outcomes := make([]*matching.MatchOutcome, len(inputs.items))
	evaluations := make([]*matching.Evaluation, len(inputs.items))
	var pending []int

	for i, item := range inputs.items {
		ev := s.matcher.Evaluate(item, inputs.candidates, inputs.patterns)
		if s.matcher.NeedsAssist(ev) {
			evaluations[i] = ev
			pending = append(pending, i)
			continue
		}
		outcomes[i] = s.matcher.Resolve(ctx, ev)
	}

	var llmAttempts, llmFailures atomic.Int64
	var discarded atomic.Bool
	cancelled := false

	g := new(errgroup.Group)
	g.SetLimit(s.batchSize)

	for _, i := range pending {
		if ctx.Err() != nil {
			cancelled = true
			break
		}
		g.Go(func() error {
			// g.Go may have waited for a free slot past cancellation
			if ctx.Err() != nil {
				discarded.Store(true)
				return nil
			}

			outcome := s.matcher.Resolve(ctx, evaluations[i])
			if ctx.Err() != nil {
				// batch cancelled while in flight
				discarded.Store(true)
				return nil
			}

			if outcome.AssistedAttempted {
				llmAttempts.Add(1)
			}
			if outcome.AssistedFailed {
				llmFailures.Add(1)
				s.logger.Info("Classifier failed, using heuristic result",
					"run_id", runID, "invoice_line_item_id", evaluations[i].Item.ID, "error", outcome.AssistErr)
			}
			outcomes[i] = outcome
			return nil
		})
	}
	_ = g.Wait()
	cancelled = cancelled || discarded.Load()

	result := s.commit(context.WithoutCancel(ctx), runID, req.Rematch, inputs.items, outcomes)

	elapsed := time.Since(start)
	details := &result.ProcessingDetails
	details.ProcessingTimeMs = elapsed.Milliseconds()
	details.LLMAttempts = llmAttempts.Load()
	details.LLMFailures = llmFailures.Load()
	details.PatternsUsed = inputs.patternsUsed
	details.BatchSize = s.batchSize
	if result.TotalLineItems > 0 {
		details.AverageTimePerItem = float64(elapsed.Microseconds()) / 1000 / float64(result.TotalLineItems)
		if secs := elapsed.Seconds(); secs > 0 {
			details.ThroughputItemsPerSecond = float64(result.TotalLineItems) / secs
		}
	}

	result.Success = !cancelled
	if cancelled {
		result.Error = ErrBatchCancelled.Error()
	}

	s.logger.Info("Batch matching completed",
		"run_id", runID,
		"project_id", req.ProjectID,
		"matched", result.MatchedItems,
		"unmatched", result.UnmatchedItems,
		"llm_attempts", details.LLMAttempts,
		"llm_failures", details.LLMFailures,
		"errors", len(result.Errors),
		"cancelled", cancelled,
		"duration_ms", details.ProcessingTimeMs)

	return result, nil
}

// load reads the batch inputs. Any store failure here is fatal for the run.
func (s *matchingServiceImpl) load(ctx context.Context, req MatchRequest) (*batchInputs, error) {
	if req.ProjectID <= 0 {
		return nil, fmt.Errorf("%w: project id is required", ErrValidation)
	}

	project, err := s.projectRepo.GetByID(ctx, req.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}
	if project == nil {
		return nil, fmt.Errorf("%w: project %d", ErrNotFound, req.ProjectID)
	}

	var items []*entity.InvoiceLineItem
	if len(req.InvoiceLineItemIDs) > 0 {
		items, err = s.invoiceRepo.GetLineItemsByIDs(ctx, req.ProjectID, req.InvoiceLineItemIDs)
	} else {
		items, err = s.invoiceRepo.ListLineItemsByProject(ctx, req.ProjectID, !req.Rematch)
	}
	if err != nil {
		return nil, fmt.Errorf("load invoice line items: %w", err)
	}

	candidates, err := s.estimateRepo.ListByProject(ctx, req.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("load estimate line items: %w", err)
	}

	corrections, err := s.correctionRepo.ListByProject(ctx, req.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("load corrections: %w", err)
	}

	inputs := &batchInputs{
		items:      selectItems(items, req),
		candidates: candidates,
	}
	inputs.patterns, inputs.patternsUsed = matching.NewPatternSet(corrections, candidates)

	return inputs, nil
}

// selectItems skips mapped items unless rematching, never touches manual
// mappings and applies the request's status and exclusion filters
func selectItems(items []*entity.InvoiceLineItem, req MatchRequest) []*entity.InvoiceLineItem {
	excluded := make(map[int64]struct{}, len(req.ExcludeLineItemIDs))
	for _, id := range req.ExcludeLineItemIDs {
		excluded[id] = struct{}{}
	}

	selected := make([]*entity.InvoiceLineItem, 0, len(items))
	for _, item := range items {
		if item.Mapping != nil {
			if !req.Rematch || item.Mapping.Method == entity.MatchMethodManual {
				continue
			}
		}
		if _, ok := excluded[item.ID]; ok {
			continue
		}
		if len(req.Statuses) > 0 && !slices.Contains(req.Statuses, item.InvoiceStatus) {
			continue
		}
		selected = append(selected, item)
	}
	return selected
}

// commit persists every accepted decision in item order and builds the result.
// Items without an outcome (not dispatched or discarded on cancellation) count
// as unmatched. An item whose mapping changed since the batch loaded it keeps
// that mapping.
func (s *matchingServiceImpl) commit(ctx context.Context, runID string, rematch bool, items []*entity.InvoiceLineItem, outcomes []*matching.MatchOutcome) *BulkMatchingResult {
	result := &BulkMatchingResult{
		TotalLineItems: len(items),
		Matches:        make([]*entity.MatchResult, 0, len(items)),
	}

	invoices := make(map[int64]struct{})
	var confidenceSum float64

	for i, item := range items {
		invoices[item.InvoiceID] = struct{}{}

		outcome := outcomes[i]
		if outcome == nil {
			continue
		}
		if outcome.Result == nil {
			result.UnmatchedLineItemIDs = append(result.UnmatchedLineItemIDs, item.ID)
			continue
		}
		match := outcome.Result

		applied, err := s.mappings.ApplyMatch(ctx, &entity.Mapping{
			InvoiceLineItemID:  match.InvoiceLineID,
			EstimateLineItemID: match.EstimateID,
			Confidence:         match.Confidence,
			Method:             match.Method,
			Reasoning:          match.Reasoning,
		}, rematch)
		if err != nil {
			s.logger.Error("Failed to persist match", "error", err,
				"run_id", runID, "invoice_line_item_id", match.InvoiceLineID)
			result.Errors = append(result.Errors, ItemError{
				InvoiceLineID: match.InvoiceLineID,
				Error:         err.Error(),
			})
			continue
		}
		if !applied {
			s.logger.Info("Mapping changed during batch, keeping it",
				"run_id", runID, "invoice_line_item_id", match.InvoiceLineID)
			continue
		}

		result.Matches = append(result.Matches, match)
		confidenceSum += match.Confidence
		switch match.Method {
		case entity.MatchMethodLLM:
			result.ProcessingDetails.LLMMatches++
		case entity.MatchMethodLogic:
			result.ProcessingDetails.LogicMatches++
		}
	}

	result.TotalInvoices = len(invoices)
	result.MatchedItems = len(result.Matches)
	result.UnmatchedItems = result.TotalLineItems - result.MatchedItems
	if result.MatchedItems > 0 {
		result.AverageConfidence = confidenceSum / float64(result.MatchedItems)
	}

	return result
}
