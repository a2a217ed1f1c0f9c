package matching

import (
	"math"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/garyjia/cost-reconciler/internal/domain/entity"
)

// patternBoost is added to a candidate that a previous manual correction chose
// for the same normalized description
const patternBoost = 0.25

// ScoredCandidate is one estimate line item with its heuristic score
type ScoredCandidate struct {
	Estimate       *entity.EstimateLineItem
	Score          float64
	TextScore      float64
	AmountMismatch float64
	Boosted        bool
}

// TextSimilarity is the Dice coefficient of two token sets
func TextSimilarity(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	set := make(map[string]struct{}, len(a))
	for _, t := range a {
		set[t] = struct{}{}
	}
	overlap := 0
	for _, t := range b {
		if _, ok := set[t]; ok {
			overlap++
		}
	}
	return 2 * float64(overlap) / float64(len(a)+len(b))
}

// AmountMismatch returns min(|amount-estimate|/estimate, 1).
// A zero estimate is a full mismatch unless the amount is zero too.
func AmountMismatch(amount, estimate decimal.Decimal) float64 {
	if !estimate.IsPositive() {
		if amount.IsZero() {
			return 0
		}
		return 1
	}
	r, _ := amount.Sub(estimate).Abs().Div(estimate).Float64()
	return math.Min(r, 1)
}

// scoreCandidate computes text * (1 - weight*mismatch), boosted by a correction pattern
func scoreCandidate(itemTokens []string, amount decimal.Decimal, est *entity.EstimateLineItem, weight float64, boosted bool) ScoredCandidate {
	sc := ScoredCandidate{
		Estimate:       est,
		TextScore:      TextSimilarity(itemTokens, Tokenize(est.Description)),
		AmountMismatch: AmountMismatch(amount, est.EstimateTotal()),
		Boosted:        boosted,
	}
	if sc.TextScore > 0 {
		sc.Score = sc.TextScore * (1 - weight*sc.AmountMismatch)
	}
	if boosted {
		sc.Score = math.Min(sc.Score+patternBoost, 1)
	}
	return sc
}

// rank orders candidates by score descending. Equal scores prefer the trade the
// invoice was imported under, then the lowest estimate line item id.
func rank(scored []ScoredCandidate, importTradeID *int64) {
	sort.SliceStable(scored, func(i, j int) bool {
		a, b := scored[i], scored[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if importTradeID != nil {
			aIn := a.Estimate.TradeID == *importTradeID
			bIn := b.Estimate.TradeID == *importTradeID
			if aIn != bIn {
				return aIn
			}
		}
		return a.Estimate.ID < b.Estimate.ID
	})
}
