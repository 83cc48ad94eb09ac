package capture

import (
	"github.com/AlverezYari/poseframe/internal/domain"
)

type State int

const (
	StateIdle State = iota
	StateCapturing
	StateTransitioning
	StateComplete
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCapturing:
		return "capturing"
	case StateTransitioning:
		return "transitioning"
	case StateComplete:
		return "complete"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions happen without a new Start.
func (s State) Terminal() bool {
	return s == StateComplete || s == StateStopped
}

// User-facing text. The presentation layer renders these as-is.
const (
	InstructionIdle     = `Press "Start Recognition" and look straight at the camera`
	InstructionSaving   = "All positions captured. Saving data..."
	InstructionStopped  = "Recognition stopped."
	InstructionComplete = "User saved successfully with ID: "

	MessageTransition    = "OK, now wait for the next position one second..."
	MessageValidation    = "Please fill in both your first name and last name to start recognition."
	MessageCameraMissing = "Camera unavailable. Grant camera permission or reconnect the device."
	MessageVerifyFailed  = "Verification service unavailable, retrying..."
	MessagePersistFailed = "Error saving user: "
)

// Prompt returns the instruction shown while capturing p.
func Prompt(p domain.Position) string {
	switch p {
	case domain.PositionFront:
		return "Please look straight ahead"
	case domain.PositionSideways:
		return "Please turn your head to the SIDE"
	case domain.PositionDown:
		return "Please tilt your head DOWN slightly"
	default:
		return InstructionIdle
	}
}

// Snapshot is a copy of the session as the presentation layer sees it.
type Snapshot struct {
	SessionID string
	State     State
	Identity  domain.Identity

	// Position is the position being captured, or the one being left
	// while transitioning. NextPosition is set only while transitioning.
	Position     domain.Position
	NextPosition domain.Position

	Recognizing       bool
	Saving            bool
	Instruction       string
	TransitionMessage string
	ErrorMessage      string

	Captured [domain.SlotCount]bool
	UserID   string
}

// CapturedCount returns how many slots hold an encoding.
func (s Snapshot) CapturedCount() int {
	n := 0
	for _, ok := range s.Captured {
		if ok {
			n++
		}
	}
	return n
}
