package matching

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/garyjia/cost-reconciler/internal/application/port"
	"github.com/garyjia/cost-reconciler/internal/domain/entity"
)

// ErrClassifierDisabled is returned by Assist when no classifier is configured
var ErrClassifierDisabled = errors.New("classifier disabled")

// Evaluation is the heuristic stage result for one invoice line item
type Evaluation struct {
	Item   *entity.InvoiceLineItem
	Ranked []ScoredCandidate
}

// Top returns the best heuristic candidate or nil when there are no candidates
func (e *Evaluation) Top() *ScoredCandidate {
	if e == nil || len(e.Ranked) == 0 {
		return nil
	}
	return &e.Ranked[0]
}

// Shortlist returns the top n ranked candidates
func (e *Evaluation) Shortlist(n int) []ScoredCandidate {
	if n > len(e.Ranked) {
		n = len(e.Ranked)
	}
	return e.Ranked[:n]
}

// MatchOutcome is a match decision plus what happened on the way to it
type MatchOutcome struct {
	Result            *entity.MatchResult
	AssistedAttempted bool
	AssistedFailed    bool
	AssistedAccepted  bool
	PatternApplied    bool

	// AssistErr is the classifier failure behind AssistedFailed
	AssistErr error
}

// Matcher assigns invoice line items to estimate line items using a
// deterministic heuristic first and an optional classifier when it is inconclusive.
type Matcher struct {
	thresholds Thresholds
	classifier port.Classifier
	timeout    time.Duration
}

// NewMatcher creates a matcher. classifier may be nil for heuristic-only matching.
func NewMatcher(thresholds Thresholds, classifier port.Classifier, timeout time.Duration) *Matcher {
	return &Matcher{
		thresholds: thresholds,
		classifier: classifier,
		timeout:    timeout,
	}
}

// Thresholds returns the matcher's thresholds
func (m *Matcher) Thresholds() Thresholds {
	return m.thresholds
}

// Evaluate runs the heuristic stage. It never blocks and has no side effects.
func (m *Matcher) Evaluate(item *entity.InvoiceLineItem, candidates []*entity.EstimateLineItem, patterns *PatternSet) *Evaluation {
	tokens := Tokenize(item.Description)
	target, hasTarget := patterns.Target(item.Description)

	scored := make([]ScoredCandidate, 0, len(candidates))
	for _, est := range candidates {
		boosted := hasTarget && est.ID == target
		scored = append(scored, scoreCandidate(tokens, item.TotalPrice, est, m.thresholds.AmountPenaltyWeight, boosted))
	}
	rank(scored, item.ImportTradeID)

	return &Evaluation{Item: item, Ranked: scored}
}

// NeedsAssist reports whether the classifier should be consulted for ev
func (m *Matcher) NeedsAssist(ev *Evaluation) bool {
	if m.classifier == nil {
		return false
	}
	top := ev.Top()
	return top != nil && top.Score < m.thresholds.AutoAccept
}

// Assist asks the classifier to pick among the shortlist. The call is bounded
// by the matcher timeout. A candidate index outside the shortlist is an error;
// -1 means the classifier found no fitting candidate.
func (m *Matcher) Assist(ctx context.Context, ev *Evaluation) (*port.ClassificationResult, error) {
	if m.classifier == nil {
		return nil, ErrClassifierDisabled
	}

	shortlist := ev.Shortlist(m.thresholds.ShortlistSize)
	req := port.ClassificationRequest{
		Description: ev.Item.Description,
		Amount:      ev.Item.TotalPrice.InexactFloat64(),
		Candidates:  make([]port.ClassificationCandidate, 0, len(shortlist)),
	}
	for _, sc := range shortlist {
		req.Candidates = append(req.Candidates, port.ClassificationCandidate{
			EstimateLineItemID: sc.Estimate.ID,
			Description:        sc.Estimate.Description,
			TradeName:          sc.Estimate.TradeName,
			Unit:               sc.Estimate.Unit,
			EstimateTotal:      sc.Estimate.EstimateTotal().Round(2).InexactFloat64(),
		})
	}

	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	result, err := m.classifier.Classify(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("classify line item %d: %w", ev.Item.ID, err)
	}
	if result == nil {
		return nil, fmt.Errorf("classify line item %d: empty result", ev.Item.ID)
	}
	if result.CandidateIndex < -1 || result.CandidateIndex >= len(shortlist) {
		return nil, fmt.Errorf("classify line item %d: candidate index %d out of range [0,%d)",
			ev.Item.ID, result.CandidateIndex, len(shortlist))
	}
	if math.IsNaN(result.Confidence) {
		return nil, fmt.Errorf("classify line item %d: confidence is NaN", ev.Item.ID)
	}
	result.Confidence = math.Max(0, math.Min(result.Confidence, 1))

	return result, nil
}

// Decide applies the decision policy to a heuristic evaluation and an optional
// classifier result: a classifier pick at or above AutoAccept wins, otherwise the
// heuristic top at or above Floor, otherwise no match.
func (m *Matcher) Decide(ev *Evaluation, assisted *port.ClassificationResult) *MatchOutcome {
	outcome := &MatchOutcome{AssistedAttempted: assisted != nil}

	if assisted != nil && assisted.CandidateIndex >= 0 && assisted.Confidence >= m.thresholds.AutoAccept {
		pick := ev.Shortlist(m.thresholds.ShortlistSize)[assisted.CandidateIndex]
		outcome.AssistedAccepted = true
		outcome.PatternApplied = pick.Boosted
		outcome.Result = &entity.MatchResult{
			InvoiceLineID: ev.Item.ID,
			EstimateID:    pick.Estimate.ID,
			Confidence:    assisted.Confidence,
			Method:        entity.MatchMethodLLM,
			Reasoning:     assisted.Reasoning,
		}
		return outcome
	}

	top := ev.Top()
	if top == nil || top.Score < m.thresholds.Floor {
		return outcome
	}

	outcome.PatternApplied = top.Boosted
	outcome.Result = &entity.MatchResult{
		InvoiceLineID: ev.Item.ID,
		EstimateID:    top.Estimate.ID,
		Confidence:    top.Score,
		Method:        entity.MatchMethodLogic,
		Reasoning:     heuristicReasoning(top),
	}
	return outcome
}

// Resolve finishes an evaluation: the classifier is consulted only when the
// heuristic is inconclusive. Classifier failures degrade to the heuristic
// result and are reported on the outcome, never returned.
func (m *Matcher) Resolve(ctx context.Context, ev *Evaluation) *MatchOutcome {
	if !m.NeedsAssist(ev) {
		return m.Decide(ev, nil)
	}

	assisted, err := m.Assist(ctx, ev)
	if err != nil {
		outcome := m.Decide(ev, nil)
		outcome.AssistedAttempted = true
		outcome.AssistedFailed = true
		outcome.AssistErr = err
		return outcome
	}
	return m.Decide(ev, assisted)
}

// Match runs both stages for a single item
func (m *Matcher) Match(ctx context.Context, item *entity.InvoiceLineItem, candidates []*entity.EstimateLineItem, patterns *PatternSet) *MatchOutcome {
	return m.Resolve(ctx, m.Evaluate(item, candidates, patterns))
}

func heuristicReasoning(sc *ScoredCandidate) string {
	reason := fmt.Sprintf("token similarity %.2f, amount mismatch %.0f%%", sc.TextScore, sc.AmountMismatch*100)
	if sc.Boosted {
		reason += ", matches a previous manual correction"
	}
	return reason
}
