package models

import "time"

// BoardList is one column of the task board.
type BoardList struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// BoardCard is a task on a list. Due is nil when the card has no (parseable) due date.
type BoardCard struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Due         *time.Time `json:"due,omitempty"`
	DueComplete bool       `json:"due_complete"`
}

// IsOverdue reports whether the card has an open due date before now.
func (c BoardCard) IsOverdue(now time.Time) bool {
	return c.Due != nil && !c.DueComplete && c.Due.Before(now)
}

// BoardSnapshot is the board state at fetch time. CardsByList is keyed by list ID;
// a list whose card fetch failed maps to an empty slice.
type BoardSnapshot struct {
	Lists       []BoardList            `json:"lists"`
	CardsByList map[string][]BoardCard `json:"cards_by_list"`
}
