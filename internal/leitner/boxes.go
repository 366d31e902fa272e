package leitner

import (
	"sort"

	"github.com/samber/lo"

	"github.com/example/boxtrainer/pkg/models"
)

// removeItem drops id from box and returns the removed item.
func removeItem(s models.BoxesState, box models.BoxName, id int64) (models.LearningItem, bool) {
	list := s[box]
	idx := lo.IndexOf(lo.Map(list, func(it models.LearningItem, _ int) int64 { return it.ID }), id)
	if idx < 0 {
		return models.LearningItem{}, false
	}
	item := list[idx]
	next := make([]models.LearningItem, 0, len(list)-1)
	next = append(next, list[:idx]...)
	next = append(next, list[idx+1:]...)
	s[box] = next
	return item, true
}

// prependItem puts item at the front of box.
func prependItem(s models.BoxesState, box models.BoxName, item models.LearningItem) {
	next := make([]models.LearningItem, 0, len(s[box])+1)
	next = append(next, item)
	next = append(next, s[box]...)
	s[box] = next
}

// promoteTranslation moves translation idx of item id to the front.
func promoteTranslation(s models.BoxesState, box models.BoxName, id int64, idx int) (models.LearningItem, bool) {
	for i, item := range s[box] {
		if item.ID != id {
			continue
		}
		if idx <= 0 || idx >= len(item.Translations) {
			return item, false
		}
		reordered := make([]string, 0, len(item.Translations))
		reordered = append(reordered, item.Translations[idx])
		reordered = append(reordered, item.Translations[:idx]...)
		reordered = append(reordered, item.Translations[idx+1:]...)
		item.Translations = reordered
		s[box][i] = item
		return item, true
	}
	return models.LearningItem{}, false
}

// dedupeBoxes enforces that an id lives in at most one box, keeping the
// occurrence in the highest tier.
func dedupeBoxes(s models.BoxesState) models.BoxesState {
	seen := make(map[int64]struct{})
	out := models.NewBoxesState()
	for i := len(models.BoxOrder) - 1; i >= 0; i-- {
		box := models.BoxOrder[i]
		for _, item := range s[box] {
			if _, dup := seen[item.ID]; dup {
				continue
			}
			seen[item.ID] = struct{}{}
			out[box] = append(out[box], item.Clone())
		}
	}
	return out
}

func sortedIDs(set map[int64]struct{}) []int64 {
	ids := lo.Keys(set)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
