package engine

import (
	"math/rand"
	"sort"
	"strings"

	"fanfrenzy/internal/domain"
)

// ShuffleItems projects content into orderable shuffle items with redacted
// context, sorted into canonical order.
func ShuffleItems(content domain.GameContent) ([]domain.ShuffleItemMoment, error) {
	var p shuffleProjector
	for _, m := range content.Moments {
		m.Accept(&p)
	}
	if len(p.items) < 2 {
		return nil, ErrTooFewItems
	}
	sort.Slice(p.items, func(i, j int) bool { return p.items[i].Index < p.items[j].Index })
	return p.items, nil
}

// Shuffled returns a random permutation of items. rnd may be nil.
func Shuffled(items []domain.ShuffleItemMoment, rnd *rand.Rand) []domain.ShuffleItemMoment {
	out := append([]domain.ShuffleItemMoment(nil), items...)
	swap := func(i, j int) { out[i], out[j] = out[j], out[i] }
	if rnd != nil {
		rnd.Shuffle(len(out), swap)
	} else {
		rand.Shuffle(len(out), swap)
	}
	return out
}

type shuffleProjector struct {
	items []domain.ShuffleItemMoment
}

func (p *shuffleProjector) VisitStart(domain.StartMoment)   {}
func (p *shuffleProjector) VisitEnd(domain.EndMoment)       {}
func (p *shuffleProjector) VisitFillIn(domain.FillInMoment) {}

func (p *shuffleProjector) VisitMultipleChoice(m domain.MultipleChoiceMoment) {
	p.add(m.Index, m.Context, m.Importance)
}

func (p *shuffleProjector) VisitShuffleItem(m domain.ShuffleItemMoment) {
	p.add(m.Index, m.Context, m.Importance)
}

func (p *shuffleProjector) add(index int, context string, importance float64) {
	if strings.TrimSpace(context) == "" {
		return
	}
	p.items = append(p.items, domain.ShuffleItemMoment{
		Index:      index,
		Context:    SanitizeShuffleContext(context),
		Importance: importance,
	})
}
