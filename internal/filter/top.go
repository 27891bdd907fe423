package filter

import (
	"sort"

	"digestbot/internal/model"
)

// Selection policy for the digest.
const (
	HighRelevance = 80
	wideCount     = 5
	narrowCount   = 3
)

// SelectTop drops unscored articles, orders the rest by score descending
// (ties keep input order) and keeps the top five when at least five
// articles score above HighRelevance, otherwise the top three.
// It never pads: fewer qualifying articles yield a shorter result.
func SelectTop(articles []model.Article) []model.Article {
	scored := make([]model.Article, 0, len(articles))
	for _, a := range articles {
		if a.RelevanceScore != nil {
			scored = append(scored, a)
		}
	}
	if len(scored) == 0 {
		return []model.Article{}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return *scored[i].RelevanceScore > *scored[j].RelevanceScore
	})

	high := 0
	for _, a := range scored {
		if *a.RelevanceScore > HighRelevance {
			high++
		}
	}

	n := narrowCount
	if high >= wideCount {
		n = wideCount
	}
	if n > len(scored) {
		n = len(scored)
	}
	return scored[:n]
}
