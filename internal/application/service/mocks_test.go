package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/garyjia/cost-reconciler/internal/application/port"
	"github.com/garyjia/cost-reconciler/internal/domain/entity"
)

type mockLogger struct{}

func (m *mockLogger) Info(msg string, keysAndValues ...interface{})  {}
func (m *mockLogger) Error(msg string, keysAndValues ...interface{}) {}

type mockTxManager struct{}

func (m *mockTxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type mockLocker struct {
	mu    sync.Mutex
	locks int
}

func (m *mockLocker) Lock(ctx context.Context, key string) (func(), error) {
	m.mu.Lock()
	m.locks++
	m.mu.Unlock()
	return func() {}, nil
}

type mockClassifier struct {
	classify func(ctx context.Context, req port.ClassificationRequest) (*port.ClassificationResult, error)
}

func (m *mockClassifier) Classify(ctx context.Context, req port.ClassificationRequest) (*port.ClassificationResult, error) {
	return m.classify(ctx, req)
}

// memStore is an in-memory relational store shared by the mock repositories
type memStore struct {
	mu          sync.Mutex
	nextID      int64
	projects    map[int64]*entity.Project
	trades      map[int64]*entity.Trade
	estimates   map[int64]*entity.EstimateLineItem
	invoices    map[int64]*entity.Invoice
	lineItems   map[int64]*entity.InvoiceLineItem
	mappings    map[int64]*entity.Mapping
	corrections []*entity.MatchCorrection
	upserts     int

	upsertErr func(m *entity.Mapping) error
	listErr   error
}

func newMemStore() *memStore {
	return &memStore{
		nextID:    1000,
		projects:  make(map[int64]*entity.Project),
		trades:    make(map[int64]*entity.Trade),
		estimates: make(map[int64]*entity.EstimateLineItem),
		invoices:  make(map[int64]*entity.Invoice),
		lineItems: make(map[int64]*entity.InvoiceLineItem),
		mappings:  make(map[int64]*entity.Mapping),
	}
}

func (s *memStore) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *memStore) addProject(id int64) {
	s.projects[id] = &entity.Project{ID: id, Name: "Project"}
}

func (s *memStore) addTrade(t *entity.Trade) {
	s.trades[t.ID] = t
	for _, li := range t.LineItems {
		li.TradeID = t.ID
		li.ProjectID = t.ProjectID
		li.TradeName = t.Name
		s.estimates[li.ID] = li
	}
}

func (s *memStore) addInvoice(inv *entity.Invoice) {
	s.invoices[inv.ID] = inv
	for _, li := range inv.LineItems {
		li.InvoiceID = inv.ID
		s.lineItems[li.ID] = li
	}
}

// view returns a copy of li with its read projections filled in
func (s *memStore) view(li *entity.InvoiceLineItem) *entity.InvoiceLineItem {
	inv := s.invoices[li.InvoiceID]
	cp := *li
	cp.ProjectID = inv.ProjectID
	cp.ImportTradeID = inv.TradeID
	cp.InvoiceStatus = inv.Status
	cp.Mapping = nil
	if m, ok := s.mappings[li.ID]; ok {
		mc := *m
		cp.Mapping = &mc
	}
	return &cp
}

func (s *memStore) sortedLineItemIDs() []int64 {
	ids := make([]int64, 0, len(s.lineItems))
	for id := range s.lineItems {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (s *memStore) mappingSnapshot() map[int64]int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := make(map[int64]int64, len(s.mappings))
	for id, m := range s.mappings {
		snap[id] = m.EstimateLineItemID
	}
	return snap
}

type mockProjectRepo struct{ s *memStore }

func (r *mockProjectRepo) Create(ctx context.Context, project *entity.Project) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	project.ID = r.s.id()
	r.s.projects[project.ID] = project
	return nil
}

func (r *mockProjectRepo) GetByID(ctx context.Context, id int64) (*entity.Project, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.projects[id], nil
}

func (r *mockProjectRepo) ListWithUnmappedLineItems(ctx context.Context) ([]int64, error) {
	return nil, nil
}

type mockTradeRepo struct{ s *memStore }

func (r *mockTradeRepo) Create(ctx context.Context, trade *entity.Trade) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	trade.ID = r.s.id()
	for _, li := range trade.LineItems {
		li.ID = r.s.id()
	}
	r.s.addTrade(trade)
	return nil
}

func (r *mockTradeRepo) GetByID(ctx context.Context, id int64) (*entity.Trade, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.trades[id], nil
}

func (r *mockTradeRepo) ListByProject(ctx context.Context, projectID int64) ([]*entity.Trade, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var trades []*entity.Trade
	for _, t := range r.s.trades {
		if t.ProjectID == projectID {
			trades = append(trades, t)
		}
	}
	sort.Slice(trades, func(i, j int) bool { return trades[i].ID < trades[j].ID })
	return trades, nil
}

type mockEstimateRepo struct{ s *memStore }

func (r *mockEstimateRepo) GetByID(ctx context.Context, id int64) (*entity.EstimateLineItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.estimates[id], nil
}

func (r *mockEstimateRepo) ListByProject(ctx context.Context, projectID int64) ([]*entity.EstimateLineItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var items []*entity.EstimateLineItem
	for _, e := range r.s.estimates {
		if e.ProjectID == projectID {
			items = append(items, e)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

func (r *mockEstimateRepo) Delete(ctx context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	est, ok := r.s.estimates[id]
	if !ok {
		return nil
	}
	delete(r.s.estimates, id)
	if t, ok := r.s.trades[est.TradeID]; ok {
		kept := t.LineItems[:0]
		for _, li := range t.LineItems {
			if li.ID != id {
				kept = append(kept, li)
			}
		}
		t.LineItems = kept
	}
	for liID, m := range r.s.mappings {
		if m.EstimateLineItemID == id {
			delete(r.s.mappings, liID)
		}
	}
	return nil
}

type mockInvoiceRepo struct{ s *memStore }

func (r *mockInvoiceRepo) Create(ctx context.Context, invoice *entity.Invoice) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	invoice.ID = r.s.id()
	for _, li := range invoice.LineItems {
		li.ID = r.s.id()
	}
	r.s.addInvoice(invoice)
	return nil
}

func (r *mockInvoiceRepo) GetByID(ctx context.Context, id int64) (*entity.Invoice, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.invoices[id], nil
}

func (r *mockInvoiceRepo) UpdateStatus(ctx context.Context, id int64, status entity.InvoiceStatus) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.invoices[id].Status = status
	return nil
}

func (r *mockInvoiceRepo) GetLineItem(ctx context.Context, id int64) (*entity.InvoiceLineItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	li, ok := r.s.lineItems[id]
	if !ok {
		return nil, nil
	}
	return r.s.view(li), nil
}

func (r *mockInvoiceRepo) ListLineItemsByProject(ctx context.Context, projectID int64, unmappedOnly bool) ([]*entity.InvoiceLineItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.listErr != nil {
		return nil, r.s.listErr
	}
	var items []*entity.InvoiceLineItem
	for _, id := range r.s.sortedLineItemIDs() {
		v := r.s.view(r.s.lineItems[id])
		if v.ProjectID != projectID || (unmappedOnly && v.Mapping != nil) {
			continue
		}
		items = append(items, v)
	}
	return items, nil
}

func (r *mockInvoiceRepo) GetLineItemsByIDs(ctx context.Context, projectID int64, ids []int64) ([]*entity.InvoiceLineItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var items []*entity.InvoiceLineItem
	for _, id := range ids {
		li, ok := r.s.lineItems[id]
		if !ok {
			continue
		}
		if v := r.s.view(li); v.ProjectID == projectID {
			items = append(items, v)
		}
	}
	return items, nil
}

func (r *mockInvoiceRepo) ListMappedActuals(ctx context.Context, projectID int64) ([]*entity.ActualLine, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var lines []*entity.ActualLine
	for _, id := range r.s.sortedLineItemIDs() {
		v := r.s.view(r.s.lineItems[id])
		if v.ProjectID != projectID || v.Mapping == nil {
			continue
		}
		lines = append(lines, &entity.ActualLine{
			InvoiceLineItemID:  v.ID,
			InvoiceID:          v.InvoiceID,
			EstimateLineItemID: v.Mapping.EstimateLineItemID,
			TotalPrice:         v.TotalPrice,
			InvoiceStatus:      v.InvoiceStatus,
		})
	}
	return lines, nil
}

type mockMappingRepo struct{ s *memStore }

func (r *mockMappingRepo) Upsert(ctx context.Context, mapping *entity.Mapping) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.upsertErr != nil {
		if err := r.s.upsertErr(mapping); err != nil {
			return err
		}
	}
	r.s.upserts++
	now := time.Now()
	if existing, ok := r.s.mappings[mapping.InvoiceLineItemID]; ok {
		mapping.CreatedAt = existing.CreatedAt
	} else {
		mapping.CreatedAt = now
	}
	mapping.UpdatedAt = now
	cp := *mapping
	r.s.mappings[mapping.InvoiceLineItemID] = &cp
	return nil
}

func (r *mockMappingRepo) Delete(ctx context.Context, invoiceLineItemID int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.mappings, invoiceLineItemID)
	return nil
}

func (r *mockMappingRepo) GetByInvoiceLineItemID(ctx context.Context, invoiceLineItemID int64) (*entity.Mapping, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.mappings[invoiceLineItemID], nil
}

func (r *mockMappingRepo) ListViewsByInvoice(ctx context.Context, invoiceID int64) ([]*entity.MappingView, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var views []*entity.MappingView
	for _, id := range r.s.sortedLineItemIDs() {
		li := r.s.lineItems[id]
		m, ok := r.s.mappings[id]
		if li.InvoiceID != invoiceID || !ok {
			continue
		}
		est := r.s.estimates[m.EstimateLineItemID]
		views = append(views, &entity.MappingView{
			Mapping:             *m,
			InvoiceID:           invoiceID,
			InvoiceDescription:  li.Description,
			EstimateDescription: est.Description,
			TradeID:             est.TradeID,
			TradeName:           est.TradeName,
		})
	}
	return views, nil
}

type mockCorrectionRepo struct{ s *memStore }

func (r *mockCorrectionRepo) Append(ctx context.Context, correction *entity.MatchCorrection) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	correction.ID = r.s.id()
	r.s.corrections = append(r.s.corrections, correction)
	return nil
}

func (r *mockCorrectionRepo) ListByProject(ctx context.Context, projectID int64) ([]*entity.MatchCorrection, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var list []*entity.MatchCorrection
	for _, c := range r.s.corrections {
		if c.ProjectID == projectID {
			list = append(list, c)
		}
	}
	return list, nil
}
