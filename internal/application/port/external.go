package port

import (
	"context"
)

// ClassificationCandidate is one shortlisted estimate line item offered to the classifier
type ClassificationCandidate struct {
	EstimateLineItemID int64
	Description        string
	TradeName          string
	Unit               string
	EstimateTotal      float64
}

// ClassificationRequest carries one invoice line item and its shortlist
type ClassificationRequest struct {
	Description string
	Amount      float64
	Candidates  []ClassificationCandidate
}

// ClassificationResult is the classifier's pick. CandidateIndex indexes
// ClassificationRequest.Candidates; -1 means no candidate fits.
type ClassificationResult struct {
	CandidateIndex int
	Confidence     float64
	Reasoning      string
}

// Classifier is the external assisted-classification capability (an LLM).
// Implementations must honor ctx deadlines.
type Classifier interface {
	Classify(ctx context.Context, req ClassificationRequest) (*ClassificationResult, error)
}

// ItemLocker serializes work on a single key (one invoice line item)
type ItemLocker interface {
	// Lock blocks until the key is held or ctx is done. The returned func releases it.
	Lock(ctx context.Context, key string) (unlock func(), err error)
}
