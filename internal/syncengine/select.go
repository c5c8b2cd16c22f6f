package syncengine

import (
	"sort"
	"strings"

	"github.com/gridhaven/haven/internal/config"
	"github.com/gridhaven/haven/internal/logging"
	"go.uber.org/zap"
)

// selectWithinBudget applies filter rules, scores the survivors with the
// weighted priority rules, sorts highest score first and cuts the list where
// the cumulative size would exceed the budget. A budget of zero or less means
// unlimited. Items that do not fit are skipped, not fatal.
func selectWithinBudget(items []ContentItem, filters *config.FilterRules, rules []config.PriorityRule, budget int64, logger *logging.SafeLogger) (selected []ContentItem, skipped int) {
	if logger == nil {
		logger = logging.Logger
	}

	candidates := make([]ContentItem, 0, len(items))
	for _, item := range items {
		if passesFilters(item, filters) {
			candidates = append(candidates, item)
		} else {
			skipped++
		}
	}

	type scored struct {
		item  ContentItem
		score float64
	}
	ranked := make([]scored, len(candidates))
	for i, item := range candidates {
		ranked[i] = scored{item: item, score: priorityScore(item, rules)}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].item.Name < ranked[j].item.Name
	})

	var cumulative int64
	for _, r := range ranked {
		if budget > 0 && cumulative+r.item.SizeBytes > budget {
			skipped++
			logger.Info("skipping item: size limit reached",
				zap.String("item", r.item.Name),
				zap.Int64("item_bytes", r.item.SizeBytes),
				zap.Int64("budget_bytes", budget),
				zap.Int64("cumulative_bytes", cumulative))
			continue
		}
		cumulative += r.item.SizeBytes
		selected = append(selected, r.item)
	}
	return selected, skipped
}

// passesFilters applies the declarative filter rules to one item
func passesFilters(item ContentItem, filters *config.FilterRules) bool {
	if filters == nil {
		return true
	}
	if filters.MinRating > 0 && item.Rating < filters.MinRating {
		return false
	}
	if filters.MinYear > 0 && item.Year < filters.MinYear {
		return false
	}
	if len(filters.Genres) > 0 {
		match := false
		for _, want := range filters.Genres {
			for _, have := range item.Genres {
				if strings.EqualFold(want, have) {
					match = true
				}
			}
		}
		if !match {
			return false
		}
	}
	return true
}

// priorityScore sums each rule's weighted contribution. Numeric fields scale
// by their value; value-list rules contribute the weight on membership.
func priorityScore(item ContentItem, rules []config.PriorityRule) float64 {
	var score float64
	for _, rule := range rules {
		switch rule.Field {
		case "rating":
			score += rule.Weight * item.Rating
		case "year":
			// normalize so a recent year does not dwarf rating contributions
			if item.Year > 0 {
				score += rule.Weight * float64(item.Year) / 1000.0
			}
		case "genre":
			for _, want := range rule.Values {
				for _, have := range item.Genres {
					if strings.EqualFold(want, have) {
						score += rule.Weight
					}
				}
			}
		case "folder":
			for _, want := range rule.Values {
				if strings.EqualFold(want, item.Folder) {
					score += rule.Weight
				}
			}
		}
	}
	return score
}
