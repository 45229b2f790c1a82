package retrieval

import "sort"

// DefaultRRFK is the conventional RRF constant. Increasing k flattens the
// score distribution, shrinking the advantage of top ranks.
const DefaultRRFK = 60

// Fuse merges ranked result lists with Reciprocal Rank Fusion: each item at
// zero-based rank r in a list contributes 1/(k+r+1) to its running score,
// keyed by item id. Items absent from a list contribute nothing for that
// list. The output is the union of all items sorted descending by fused
// score; ties keep input encounter order (stable sort).
func Fuse(lists [][]SearchResult, k int) []FusedResult {
	if k <= 0 {
		k = DefaultRRFK
	}

	scores := make(map[string]float64)
	byID := make(map[string]SearchResult)
	var order []string // first-encounter order, for stable tie-breaks

	for _, list := range lists {
		for rank, item := range list {
			if _, seen := scores[item.ID]; !seen {
				order = append(order, item.ID)
				byID[item.ID] = item
			}
			scores[item.ID] += 1.0 / float64(k+rank+1)
		}
	}

	fused := make([]FusedResult, 0, len(order))
	for _, id := range order {
		fused = append(fused, FusedResult{
			SearchResult: byID[id],
			FusionScore:  scores[id],
		})
	}

	sort.SliceStable(fused, func(i, j int) bool {
		return fused[i].FusionScore > fused[j].FusionScore
	})
	return fused
}
