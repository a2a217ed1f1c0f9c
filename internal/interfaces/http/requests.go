package http

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/garyjia/cost-reconciler/internal/domain/entity"
)

// MatchBody is the body of POST /api/projects/:id/match. Empty body matches
// every unmapped item of the project.
type MatchBody struct {
	InvoiceLineItemIDs []int64 `json:"invoiceLineItemIds" binding:"omitempty,dive,gt=0"`
	Rematch            bool    `json:"rematch"`
}

// CreateProjectRequest is the body of POST /api/projects
type CreateProjectRequest struct {
	Name string `json:"name" binding:"required,max=200"`
}

// EstimateLineItemRequest is one estimate line item of a trade
type EstimateLineItemRequest struct {
	Description      string          `json:"description" binding:"required"`
	Quantity         decimal.Decimal `json:"quantity" binding:"gte=0"`
	Unit             string          `json:"unit"`
	MaterialCostEst  decimal.Decimal `json:"materialCostEst" binding:"gte=0"`
	LaborCostEst     decimal.Decimal `json:"laborCostEst" binding:"gte=0"`
	EquipmentCostEst decimal.Decimal `json:"equipmentCostEst" binding:"gte=0"`
	MarkupPercent    decimal.Decimal `json:"markupPercent" binding:"gte=0"`
	OverheadPercent  decimal.Decimal `json:"overheadPercent" binding:"gte=0"`
	SortOrder        *int            `json:"sortOrder"`
}

// CreateTradeRequest is the body of POST /api/projects/:id/trades
type CreateTradeRequest struct {
	Name        string                    `json:"name" binding:"required"`
	Description string                    `json:"description"`
	SortOrder   int                       `json:"sortOrder"`
	LineItems   []EstimateLineItemRequest `json:"lineItems" binding:"dive"`
}

func (r *CreateTradeRequest) toEntity(projectID int64) *entity.Trade {
	trade := &entity.Trade{
		ProjectID:   projectID,
		Name:        r.Name,
		Description: r.Description,
		SortOrder:   r.SortOrder,
		LineItems:   make([]*entity.EstimateLineItem, 0, len(r.LineItems)),
	}
	for i, li := range r.LineItems {
		sortOrder := i
		if li.SortOrder != nil {
			sortOrder = *li.SortOrder
		}
		trade.LineItems = append(trade.LineItems, &entity.EstimateLineItem{
			Description:      li.Description,
			Quantity:         li.Quantity,
			Unit:             li.Unit,
			MaterialCostEst:  li.MaterialCostEst,
			LaborCostEst:     li.LaborCostEst,
			EquipmentCostEst: li.EquipmentCostEst,
			MarkupPercent:    li.MarkupPercent,
			OverheadPercent:  li.OverheadPercent,
			SortOrder:        sortOrder,
		})
	}
	return trade
}

// InvoiceLineItemRequest is one billed line of an invoice
type InvoiceLineItemRequest struct {
	Description string          `json:"description" binding:"required"`
	Quantity    decimal.Decimal `json:"quantity" binding:"gte=0"`
	UnitPrice   decimal.Decimal `json:"unitPrice" binding:"gte=0"`
	TotalPrice  decimal.Decimal `json:"totalPrice" binding:"gte=0"`
}

// CreateInvoiceRequest is the body of POST /api/projects/:id/invoices
type CreateInvoiceRequest struct {
	TradeID       *int64                   `json:"tradeId" binding:"omitempty,gt=0"`
	InvoiceNumber string                   `json:"invoiceNumber"`
	SupplierName  string                   `json:"supplierName"`
	InvoiceDate   *time.Time               `json:"invoiceDate"`
	Status        entity.InvoiceStatus     `json:"status" binding:"omitempty,oneof=PENDING APPROVED PAID REJECTED DISPUTED"`
	LineItems     []InvoiceLineItemRequest `json:"lineItems" binding:"required,min=1,dive"`
}

func (r *CreateInvoiceRequest) toEntity(projectID int64) *entity.Invoice {
	invoice := &entity.Invoice{
		ProjectID:     projectID,
		TradeID:       r.TradeID,
		InvoiceNumber: r.InvoiceNumber,
		SupplierName:  r.SupplierName,
		InvoiceDate:   r.InvoiceDate,
		Status:        r.Status,
		LineItems:     make([]*entity.InvoiceLineItem, 0, len(r.LineItems)),
	}
	for _, li := range r.LineItems {
		invoice.LineItems = append(invoice.LineItems, &entity.InvoiceLineItem{
			Description: li.Description,
			Quantity:    li.Quantity,
			UnitPrice:   li.UnitPrice,
			TotalPrice:  li.TotalPrice,
		})
	}
	return invoice
}

// UpdateInvoiceStatusRequest is the body of PATCH /api/invoices/:id/status
type UpdateInvoiceStatusRequest struct {
	Status entity.InvoiceStatus `json:"status" binding:"required,oneof=PENDING APPROVED PAID REJECTED DISPUTED"`
}

// AssignMappingRequest is the body of PUT /api/invoice-line-items/:id/mapping
type AssignMappingRequest struct {
	EstimateLineItemID int64 `json:"estimateLineItemId" binding:"required,gt=0"`
}
