package domain

import (
	"encoding/json"
	"fmt"
)

// MomentKind is the wire discriminator carried in the "type" field.
type MomentKind string

const (
	KindStart          MomentKind = "start"
	KindEnd            MomentKind = "end"
	KindFillIn         MomentKind = "fill-in"
	KindMultipleChoice MomentKind = "mc"
	KindShuffleItem    MomentKind = "shuffle-item"
)

// Moment is one fact or question unit within a game. The set of
// implementations is closed; consumers branch through MomentVisitor.
type Moment interface {
	MomentIndex() int
	Kind() MomentKind
	Accept(v MomentVisitor)
}

// MomentVisitor must handle every moment kind. Adding a kind adds a method
// here, which breaks every visitor until it is handled.
type MomentVisitor interface {
	VisitStart(StartMoment)
	VisitEnd(EndMoment)
	VisitFillIn(FillInMoment)
	VisitMultipleChoice(MultipleChoiceMoment)
	VisitShuffleItem(ShuffleItemMoment)
}

type StartMoment struct {
	Index   int
	Context string
}

type EndMoment struct {
	Index   int
	Context string
}

type FillInMoment struct {
	Index      int
	Context    string
	Prompt     string
	Answer     string
	Importance float64
}

type MultipleChoiceMoment struct {
	Index         int
	Context       string
	Question      string
	Options       []string
	CorrectOption int
	Explanation   string
	Importance    float64
}

type ShuffleItemMoment struct {
	Index      int
	Context    string
	Importance float64
}

func (m StartMoment) MomentIndex() int          { return m.Index }
func (m EndMoment) MomentIndex() int            { return m.Index }
func (m FillInMoment) MomentIndex() int         { return m.Index }
func (m MultipleChoiceMoment) MomentIndex() int { return m.Index }
func (m ShuffleItemMoment) MomentIndex() int    { return m.Index }

func (StartMoment) Kind() MomentKind          { return KindStart }
func (EndMoment) Kind() MomentKind            { return KindEnd }
func (FillInMoment) Kind() MomentKind         { return KindFillIn }
func (MultipleChoiceMoment) Kind() MomentKind { return KindMultipleChoice }
func (ShuffleItemMoment) Kind() MomentKind    { return KindShuffleItem }

func (m StartMoment) Accept(v MomentVisitor)          { v.VisitStart(m) }
func (m EndMoment) Accept(v MomentVisitor)            { v.VisitEnd(m) }
func (m FillInMoment) Accept(v MomentVisitor)         { v.VisitFillIn(m) }
func (m MultipleChoiceMoment) Accept(v MomentVisitor) { v.VisitMultipleChoice(m) }
func (m ShuffleItemMoment) Accept(v MomentVisitor)    { v.VisitShuffleItem(m) }

// Importance returns the scoring weight of a moment; anchors weigh nothing.
func Importance(m Moment) float64 {
	var w importanceVisitor
	m.Accept(&w)
	return float64(w)
}

type importanceVisitor float64

func (w *importanceVisitor) VisitStart(StartMoment) {}
func (w *importanceVisitor) VisitEnd(EndMoment)     {}
func (w *importanceVisitor) VisitFillIn(m FillInMoment) {
	*w = importanceVisitor(m.Importance)
}
func (w *importanceVisitor) VisitMultipleChoice(m MultipleChoiceMoment) {
	*w = importanceVisitor(m.Importance)
}
func (w *importanceVisitor) VisitShuffleItem(m ShuffleItemMoment) {
	*w = importanceVisitor(m.Importance)
}

// momentWire is the flat JSON shape shared by every kind.
type momentWire struct {
	Index       int        `json:"index"`
	Type        MomentKind `json:"type"`
	Context     string     `json:"context,omitempty"`
	Prompt      string     `json:"prompt,omitempty"`
	Answer      any        `json:"answer,omitempty"`
	Question    string     `json:"question,omitempty"`
	Options     []string   `json:"options,omitempty"`
	Explanation string     `json:"explanation,omitempty"`
	Importance  *float64   `json:"importance,omitempty"`
}

type wireVisitor struct {
	out momentWire
}

func (w *wireVisitor) VisitStart(m StartMoment) {
	w.out = momentWire{Index: m.Index, Type: KindStart, Context: m.Context}
}

func (w *wireVisitor) VisitEnd(m EndMoment) {
	w.out = momentWire{Index: m.Index, Type: KindEnd, Context: m.Context}
}

func (w *wireVisitor) VisitFillIn(m FillInMoment) {
	imp := m.Importance
	w.out = momentWire{Index: m.Index, Type: KindFillIn, Context: m.Context, Prompt: m.Prompt, Answer: m.Answer, Importance: &imp}
}

func (w *wireVisitor) VisitMultipleChoice(m MultipleChoiceMoment) {
	imp := m.Importance
	w.out = momentWire{
		Index:       m.Index,
		Type:        KindMultipleChoice,
		Context:     m.Context,
		Question:    m.Question,
		Options:     m.Options,
		Answer:      m.CorrectOption,
		Explanation: m.Explanation,
		Importance:  &imp,
	}
}

func (w *wireVisitor) VisitShuffleItem(m ShuffleItemMoment) {
	imp := m.Importance
	w.out = momentWire{Index: m.Index, Type: KindShuffleItem, Context: m.Context, Importance: &imp}
}

// MarshalMoment encodes a moment in its flat wire form.
func MarshalMoment(m Moment) ([]byte, error) {
	var w wireVisitor
	m.Accept(&w)
	return json.Marshal(w.out)
}

// UnmarshalMoment decodes the flat wire form into the concrete moment type.
func UnmarshalMoment(data []byte) (Moment, error) {
	var raw struct {
		Index       int             `json:"index"`
		Type        MomentKind      `json:"type"`
		Context     string          `json:"context"`
		Prompt      string          `json:"prompt"`
		Answer      json.RawMessage `json:"answer"`
		Question    string          `json:"question"`
		Options     []string        `json:"options"`
		Explanation string          `json:"explanation"`
		Importance  float64         `json:"importance"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	switch raw.Type {
	case KindStart:
		return StartMoment{Index: raw.Index, Context: raw.Context}, nil
	case KindEnd:
		return EndMoment{Index: raw.Index, Context: raw.Context}, nil
	case KindFillIn:
		var answer string
		if len(raw.Answer) > 0 {
			if err := json.Unmarshal(raw.Answer, &answer); err != nil {
				return nil, fmt.Errorf("moment %d: fill-in answer must be a string", raw.Index)
			}
		}
		return FillInMoment{Index: raw.Index, Context: raw.Context, Prompt: raw.Prompt, Answer: answer, Importance: raw.Importance}, nil
	case KindMultipleChoice:
		correct := -1
		if len(raw.Answer) > 0 {
			if err := json.Unmarshal(raw.Answer, &correct); err != nil {
				return nil, fmt.Errorf("moment %d: mc answer must be an option index", raw.Index)
			}
		}
		return MultipleChoiceMoment{
			Index:         raw.Index,
			Context:       raw.Context,
			Question:      raw.Question,
			Options:       raw.Options,
			CorrectOption: correct,
			Explanation:   raw.Explanation,
			Importance:    raw.Importance,
		}, nil
	case KindShuffleItem:
		return ShuffleItemMoment{Index: raw.Index, Context: raw.Context, Importance: raw.Importance}, nil
	default:
		return nil, fmt.Errorf("moment %d: unknown type %q", raw.Index, raw.Type)
	}
}

// Moments is an ordered list of moments with a JSON array codec.
type Moments []Moment

func (ms Moments) MarshalJSON() ([]byte, error) {
	out := make([]json.RawMessage, 0, len(ms))
	for _, m := range ms {
		b, err := MarshalMoment(m)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return json.Marshal(out)
}

func (ms *Moments) UnmarshalJSON(data []byte) error {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return err
	}
	out := make(Moments, 0, len(raws))
	for _, raw := range raws {
		m, err := UnmarshalMoment(raw)
		if err != nil {
			return err
		}
		out = append(out, m)
	}
	*ms = out
	return nil
}
