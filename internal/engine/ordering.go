package engine

import "fmt"

// ItemID identifies an orderable item by its moment index.
type ItemID = int

// Status is the per-item display verdict of a scored guess.
type Status string

const (
	StatusFar     Status = "far"
	StatusClose   Status = "close"
	StatusLocked  Status = "locked"
	StatusCorrect Status = "correct"
	StatusFarOff  Status = "far_off"
)

// ItemScore is the credit one item earned in a guess.
type ItemScore struct {
	Item   ItemID `json:"item"`
	Points int    `json:"points"`
	Status Status `json:"status"`
}

// OrderResult is the outcome of scoring one submitted order.
type OrderResult struct {
	PerItem      []ItemScore `json:"perItem"`
	Total        int         `json:"total"`
	BonusApplied bool        `json:"bonusApplied"`
	Perfect      bool        `json:"perfect"`
}

// Locked returns the items whose verdict locks them.
func (r OrderResult) Locked() []ItemID {
	var out []ItemID
	for _, s := range r.PerItem {
		if s.Status == StatusLocked {
			out = append(out, s.Item)
		}
	}
	return out
}

// Policy scores a submitted permutation against the correct order.
// Items in locked keep their locked verdict without being re-scored.
type Policy interface {
	Score(correct, submitted []ItemID, importance map[ItemID]float64, locked map[ItemID]bool) OrderResult
}

// ValidatePermutation checks that submitted holds exactly the items of correct.
func ValidatePermutation(correct, submitted []ItemID) error {
	if len(correct) != len(submitted) {
		return fmt.Errorf("%w: expected %d items, got %d", ErrInvalidOrder, len(correct), len(submitted))
	}
	want := make(map[ItemID]int, len(correct))
	for _, id := range correct {
		want[id]++
	}
	for _, id := range submitted {
		if want[id] == 0 {
			return fmt.Errorf("%w: unexpected or repeated item %d", ErrInvalidOrder, id)
		}
		want[id]--
	}
	return nil
}

const adjacencyMax = 4

// AdjacencyPolicy awards a point for each correct neighbour and two for the
// exact slot, up to four per item. Four locks the item.
type AdjacencyPolicy struct{}

func (AdjacencyPolicy) Score(correct, submitted []ItemID, _ map[ItemID]float64, locked map[ItemID]bool) OrderResult {
	pos := positions(correct)
	n := len(submitted)
	res := OrderResult{PerItem: make([]ItemScore, 0, n)}

	for i, id := range submitted {
		if locked[id] {
			res.PerItem = append(res.PerItem, ItemScore{Item: id, Points: adjacencyMax, Status: StatusLocked})
			res.Total += adjacencyMax
			continue
		}
		want := pos[id]
		pts := 0
		if i == 0 {
			if want == 0 {
				pts++
			}
		} else if want > 0 && submitted[i-1] == correct[want-1] {
			pts++
		}
		if i == n-1 {
			if want == n-1 {
				pts++
			}
		} else if want < n-1 && submitted[i+1] == correct[want+1] {
			pts++
		}
		if i == want {
			pts += 2
		}
		res.PerItem = append(res.PerItem, ItemScore{Item: id, Points: pts, Status: adjacencyStatus(pts)})
		res.Total += pts
	}
	res.Perfect = n > 0 && res.Total == adjacencyMax*n
	return res
}

func adjacencyStatus(pts int) Status {
	switch {
	case pts >= adjacencyMax:
		return StatusLocked
	case pts >= 2:
		return StatusClose
	default:
		return StatusFar
	}
}

const (
	distanceExactPoints  = 10
	distanceBonusPoints  = 5
	distanceFarOffPoints = -2
	distanceCloseWindow  = 2
)

// DistancePolicy scores by how far each item sits from its correct slot.
// The single most important item earns a bonus when placed exactly.
type DistancePolicy struct{}

func (DistancePolicy) Score(correct, submitted []ItemID, importance map[ItemID]float64, locked map[ItemID]bool) OrderResult {
	pos := positions(correct)
	star, hasStar := MostImportant(correct, importance)
	res := OrderResult{PerItem: make([]ItemScore, 0, len(submitted))}
	exact := 0

	for i, id := range submitted {
		diff := i - pos[id]
		if diff < 0 {
			diff = -diff
		}
		var s ItemScore
		switch {
		case diff == 0 || locked[id]:
			s = ItemScore{Item: id, Points: distanceExactPoints, Status: StatusCorrect}
			if hasStar && id == star && !res.BonusApplied {
				s.Points += distanceBonusPoints
				res.BonusApplied = true
			}
			exact++
		case diff <= distanceCloseWindow:
			s = ItemScore{Item: id, Status: StatusClose}
		default:
			s = ItemScore{Item: id, Points: distanceFarOffPoints, Status: StatusFarOff}
		}
		res.PerItem = append(res.PerItem, s)
		res.Total += s.Points
	}
	if res.Total < 0 {
		res.Total = 0
	}
	res.Perfect = len(submitted) > 0 && exact == len(submitted)
	return res
}

// MostImportant returns the item with the highest importance, ties going to
// the lowest id. ok is false for an empty order.
func MostImportant(items []ItemID, importance map[ItemID]float64) (ItemID, bool) {
	if len(items) == 0 {
		return 0, false
	}
	best := items[0]
	for _, id := range items[1:] {
		w, bw := importance[id], importance[best]
		if w > bw || (w == bw && id < best) {
			best = id
		}
	}
	return best, true
}

func positions(order []ItemID) map[ItemID]int {
	pos := make(map[ItemID]int, len(order))
	for i, id := range order {
		pos[id] = i
	}
	return pos
}
