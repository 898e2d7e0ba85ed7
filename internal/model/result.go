package model

import (
	"slices"
	"time"

	"github.com/rotisserie/eris"
)

// SourceOrder records which entry path produced a multiplier sequence and
// therefore how its extracted order maps onto time.
type SourceOrder string

const (
	// SourceCapturedTopDown is OCR of an uploaded image or screenshot. The
	// on-screen history is read newest-first, so extracted values are reversed.
	SourceCapturedTopDown SourceOrder = "captured_top_down"
	// SourceUserEditedChronological is text typed or corrected by the user,
	// already oldest-first.
	SourceUserEditedChronological SourceOrder = "user_edited_chronological"
)

// ParseSourceOrder maps CLI and API spellings onto a SourceOrder.
func ParseSourceOrder(s string) (SourceOrder, error) {
	switch s {
	case "captured", "capture", "image", "screenshot", string(SourceCapturedTopDown):
		return SourceCapturedTopDown, nil
	case "edited", "edit", "text", "", string(SourceUserEditedChronological):
		return SourceUserEditedChronological, nil
	default:
		return "", eris.Errorf("model: unknown source order %q", s)
	}
}

// Result is the record produced by one successful prediction request.
type Result struct {
	Text        string      `json:"text" yaml:"text"`
	Multipliers []float64   `json:"multipliers" yaml:"multipliers"`
	Prediction  float64     `json:"prediction" yaml:"prediction"`
	Source      SourceOrder `json:"source" yaml:"source"`
	Discarded   int         `json:"discarded_tokens" yaml:"discarded_tokens"`
	CreatedAt   time.Time   `json:"created_at" yaml:"created_at"`
}

// Clone returns a deep copy so holders can hand out records without sharing
// the multiplier slice.
func (r *Result) Clone() *Result {
	if r == nil {
		return nil
	}
	out := *r
	out.Multipliers = slices.Clone(r.Multipliers)
	return &out
}

// HistoryEntry is one persisted capture in the append-only history.
type HistoryEntry struct {
	ID          string      `json:"id"`
	Source      SourceOrder `json:"source"`
	Text        string      `json:"text"`
	Multipliers []float64   `json:"multipliers"`
	Prediction  float64     `json:"prediction"`
	CreatedAt   time.Time   `json:"created_at"`
}
