package models

import "fmt"

// BoxName identifies one of the six ordered Leitner boxes.
type BoxName string

const (
	BoxZero  BoxName = "boxZero"
	BoxOne   BoxName = "boxOne"
	BoxTwo   BoxName = "boxTwo"
	BoxThree BoxName = "boxThree"
	BoxFour  BoxName = "boxFour"
	BoxFive  BoxName = "boxFive"
)

// BoxOrder lists every box from the lowest tier to the highest.
var BoxOrder = []BoxName{BoxZero, BoxOne, BoxTwo, BoxThree, BoxFour, BoxFive}

// Index returns the tier of the box, or -1 for an unknown name.
func (b BoxName) Index() int {
	for i, name := range BoxOrder {
		if name == b {
			return i
		}
	}
	return -1
}

// Valid reports whether b is one of the six known boxes.
func (b BoxName) Valid() bool {
	return b.Index() >= 0
}

// Next returns the box one tier up. The second result is false for the top box.
func (b BoxName) Next() (BoxName, bool) {
	idx := b.Index()
	if idx < 0 || idx >= len(BoxOrder)-1 {
		return "", false
	}
	return BoxOrder[idx+1], true
}

func (b BoxName) String() string {
	return string(b)
}

// ParseBoxName accepts either the canonical name ("boxTwo") or the tier number ("2").
func ParseBoxName(s string) (BoxName, error) {
	for i, name := range BoxOrder {
		if string(name) == s || fmt.Sprint(i) == s {
			return name, nil
		}
	}
	return "", fmt.Errorf("unknown box %q", s)
}

// BoxesState maps every box to its items, newest first.
type BoxesState map[BoxName][]LearningItem

// NewBoxesState returns a state with all six boxes present and empty.
func NewBoxesState() BoxesState {
	s := make(BoxesState, len(BoxOrder))
	for _, name := range BoxOrder {
		s[name] = []LearningItem{}
	}
	return s
}

// Clone returns a deep copy that always contains all six boxes.
func (s BoxesState) Clone() BoxesState {
	c := NewBoxesState()
	for name, items := range s {
		if !name.Valid() {
			continue
		}
		list := make([]LearningItem, 0, len(items))
		for _, item := range items {
			list = append(list, item.Clone())
		}
		c[name] = list
	}
	return c
}

// Count returns the number of items in a box.
func (s BoxesState) Count(name BoxName) int {
	return len(s[name])
}

// Total returns the number of items across all boxes.
func (s BoxesState) Total() int {
	total := 0
	for _, items := range s {
		total += len(items)
	}
	return total
}

// Locate returns the box holding id.
func (s BoxesState) Locate(id int64) (BoxName, bool) {
	for _, name := range BoxOrder {
		for _, item := range s[name] {
			if item.ID == id {
				return name, true
			}
		}
	}
	return "", false
}

// Contains reports whether a box holds the given id.
func (s BoxesState) Contains(name BoxName, id int64) bool {
	for _, item := range s[name] {
		if item.ID == id {
			return true
		}
	}
	return false
}
