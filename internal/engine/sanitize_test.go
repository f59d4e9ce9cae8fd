package engine

import (
	"testing"

	"fanfrenzy/internal/domain"
)

func TestSanitizeShuffleContext(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"Score: 14-7 after the kick", "(Score Hidden) after the kick"},
		{"Ravens lead 21-14 with 2:30 left", "Ravens (Score Hidden) with (Time Hidden) left"},
		{"Flacco scrambles with 5 minutes left", "Flacco scrambles with (Time Hidden)"},
		{"START: Kickoff at the 35", "Kickoff (Field Position Hidden)"},
		{"Touchdown in the 3rd quarter", "Touchdown in the (Period Hidden)"},
		{"Q4 2:00", "(Info Hidden)"},
		{"Punt downed at the goal line", "Punt downed (Field Position Hidden)"},
		{"Walk-off single in the Bottom 9th inning", "Walk-off single in the (Period Hidden)"},
		{"START: END", RedactedFallback},
		{"   ", RedactedFallback},
	}
	for _, tc := range cases {
		if got := SanitizeShuffleContext(tc.in); got != tc.want {
			t.Fatalf("SanitizeShuffleContext(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestShuffleItemsProjection(t *testing.T) {
	content := domain.GameContent{
		GameID: "g",
		Moments: domain.Moments{
			domain.StartMoment{Index: 0, Context: "Kickoff"},
			domain.MultipleChoiceMoment{Index: 3, Context: "Field goal at the 20", Importance: 2},
			domain.MultipleChoiceMoment{Index: 1, Context: "Opening drive", Importance: 5},
			domain.MultipleChoiceMoment{Index: 2, Context: "  "},
			domain.ShuffleItemMoment{Index: 4, Context: "Final kneel", Importance: 1},
			domain.EndMoment{Index: 5, Context: "Final"},
		},
	}
	items, err := ShuffleItems(content)
	if err != nil {
		t.Fatalf("project: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(items))
	}
	if items[0].Index != 1 || items[1].Index != 3 || items[2].Index != 4 {
		t.Fatalf("items not in canonical order: %+v", items)
	}
	if items[1].Context != "Field goal (Field Position Hidden)" {
		t.Fatalf("context not redacted: %q", items[1].Context)
	}

	shuffled := Shuffled(items, nil)
	if len(shuffled) != len(items) {
		t.Fatalf("shuffle changed length")
	}
}

func TestShuffleItemsNeedsTwo(t *testing.T) {
	content := domain.GameContent{Moments: domain.Moments{domain.MultipleChoiceMoment{Index: 0, Context: "only"}}}
	if _, err := ShuffleItems(content); err != ErrTooFewItems {
		t.Fatalf("expected ErrTooFewItems, got %v", err)
	}
}
