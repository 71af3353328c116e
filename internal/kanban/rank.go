package kanban

import "sort"

// SortByRank orders cards by score descending, then posted date descending.
func SortByRank(cards []ApplicationCard) {
	sort.SliceStable(cards, func(i, j int) bool {
		if cards[i].Score != cards[j].Score {
			return cards[i].Score > cards[j].Score
		}
		return cards[i].PostedAt.After(cards[j].PostedAt)
	})
}
