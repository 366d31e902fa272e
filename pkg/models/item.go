package models

// LearningItem is a single flashcard travelling through the boxes.
// Translations are kept in preference order; the first entry is the one
// shown when the learner has to retype a missed card.
type LearningItem struct {
	ID           int64    `json:"id" db:"id"`
	Text         string   `json:"text" db:"text"`
	Translations []string `json:"translations"`
	Flippable    bool     `json:"flippable" db:"flippable"`
}

// Clone returns a deep copy of the item.
func (i LearningItem) Clone() LearningItem {
	c := i
	if i.Translations != nil {
		c.Translations = append([]string(nil), i.Translations...)
	}
	return c
}

// PrimaryTranslation returns the preferred translation or an empty string.
func (i LearningItem) PrimaryTranslation() string {
	if len(i.Translations) == 0 {
		return ""
	}
	return i.Translations[0]
}
