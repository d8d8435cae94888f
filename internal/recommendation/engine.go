package recommendation

import (
	"sort"

	"motocare/backend/internal/domain"
)

// Engine suggests companion parts for an in-progress retail sale based on
// how often parts were sold together in earlier sales.
type Engine struct {
	minConfidence float64
	maxResults    int
}

func NewEngine() *Engine {
	return &Engine{
		minConfidence: 0.2,
		maxResults:    3,
	}
}

// Suggest ranks parts that co-occur with the cart's parts in past sales.
// history holds the distinct part IDs of each past sale. Parts already in
// the cart and parts without stock at the branch are never suggested.
func (e *Engine) Suggest(
	cartPartIDs []string,
	history [][]string,
	parts map[string]domain.Part,
	branchID string,
) []domain.PartSuggestion {
	cartSet := make(map[string]struct{}, len(cartPartIDs))
	for _, id := range cartPartIDs {
		if id != "" {
			cartSet[id] = struct{}{}
		}
	}
	if len(cartSet) == 0 {
		return nil
	}

	basis := 0
	coCounts := make(map[string]int)
	for _, sale := range history {
		matched := false
		for _, partID := range sale {
			if _, inCart := cartSet[partID]; inCart {
				matched = true
				break
			}
		}
		if !matched {
			continue
		}
		basis++
		for _, partID := range sale {
			if _, inCart := cartSet[partID]; inCart {
				continue
			}
			coCounts[partID]++
		}
	}
	if basis == 0 {
		return nil
	}

	suggestions := make([]domain.PartSuggestion, 0, len(coCounts))
	for partID, count := range coCounts {
		part, ok := parts[partID]
		if !ok {
			continue
		}
		stock := part.StockAt(branchID)
		if stock <= 0 {
			continue
		}
		confidence := clamp(float64(count)/float64(basis), 0, 1)
		if confidence < e.minConfidence {
			continue
		}
		suggestions = append(suggestions, domain.PartSuggestion{
			PartID:       part.ID,
			PartName:     part.Name,
			SKU:          part.SKU,
			SellingPrice: part.SellingPrice,
			Stock:        stock,
			Confidence:   confidence,
			Reason:       "Thường được mua kèm",
		})
	}

	sort.Slice(suggestions, func(i, j int) bool {
		if suggestions[i].Confidence != suggestions[j].Confidence {
			return suggestions[i].Confidence > suggestions[j].Confidence
		}
		return suggestions[i].PartName < suggestions[j].PartName
	})
	if len(suggestions) > e.maxResults {
		suggestions = suggestions[:e.maxResults]
	}
	return suggestions
}

func clamp(v float64, lo float64, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
