package domain

import (
	"strings"
)

// Position is a head orientation the user must present. The string value
// is the tag the verification service expects.
type Position string

const (
	PositionFront    Position = "front"
	PositionSideways Position = "sideways"
	PositionDown     Position = "down"
)

// Positions lists the capture order. Slot i holds the encoding for Positions[i].
var Positions = [SlotCount]Position{PositionFront, PositionSideways, PositionDown}

// SlotCount is the number of positions, and of encodings per user.
const SlotCount = 3

// Index returns the slot index of p, or -1 for an unknown position.
func (p Position) Index() int {
	for i, candidate := range Positions {
		if candidate == p {
			return i
		}
	}
	return -1
}

// Next returns the position that follows p. The last position has none.
func (p Position) Next() (Position, bool) {
	i := p.Index()
	if i < 0 || i+1 >= SlotCount {
		return "", false
	}
	return Positions[i+1], true
}

// Identity is who is being enrolled.
type Identity struct {
	FirstName string
	LastName  string
}

// Normalize trims surrounding whitespace from both names.
func (id Identity) Normalize() Identity {
	return Identity{
		FirstName: strings.TrimSpace(id.FirstName),
		LastName:  strings.TrimSpace(id.LastName),
	}
}

// Validate returns ErrValidation unless both names are non-blank.
func (id Identity) Validate() error {
	n := id.Normalize()
	if n.FirstName == "" || n.LastName == "" {
		return ErrValidation
	}
	return nil
}

func (id Identity) String() string {
	return id.FirstName + " " + id.LastName
}

// Encoding is the opaque face feature vector produced by the verification
// service.
type Encoding []float64

// Empty reports whether the encoding holds no values.
func (e Encoding) Empty() bool { return len(e) == 0 }

// Verdict is the verification service's judgment of one frame.
type Verdict struct {
	Correct                bool
	Encoding               Encoding
	PositionChangeRequired bool
	Error                  string
	Message                string
}

// Accepted reports whether the verdict carries an encoding that can fill
// a slot.
func (v Verdict) Accepted() bool {
	return v.Correct && !v.Encoding.Empty()
}

// PersistedUser is the final aggregate sent to storage.
type PersistedUser struct {
	Identity  Identity
	Encodings [SlotCount]Encoding
}
