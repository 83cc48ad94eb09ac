package server

import (
	"github.com/AlverezYari/poseframe/internal/capture"
	"github.com/AlverezYari/poseframe/internal/domain"
)

// snapshotView is the JSON form of a capture snapshot.
type snapshotView struct {
	SessionID         string                 `json:"session_id,omitempty"`
	State             string                 `json:"state"`
	FirstName         string                 `json:"first_name,omitempty"`
	LastName          string                 `json:"last_name,omitempty"`
	Position          string                 `json:"position,omitempty"`
	NextPosition      string                 `json:"next_position,omitempty"`
	Recognizing       bool                   `json:"recognizing"`
	Saving            bool                   `json:"saving"`
	Instruction       string                 `json:"instruction"`
	TransitionMessage string                 `json:"transition_message,omitempty"`
	ErrorMessage      string                 `json:"error_message,omitempty"`
	Captured          [domain.SlotCount]bool `json:"captured"`
	UserID            string                 `json:"user_id,omitempty"`
}

func newSnapshotView(snap capture.Snapshot) snapshotView {
	return snapshotView{
		SessionID:         snap.SessionID,
		State:             snap.State.String(),
		FirstName:         snap.Identity.FirstName,
		LastName:          snap.Identity.LastName,
		Position:          string(snap.Position),
		NextPosition:      string(snap.NextPosition),
		Recognizing:       snap.Recognizing,
		Saving:            snap.Saving,
		Instruction:       snap.Instruction,
		TransitionMessage: snap.TransitionMessage,
		ErrorMessage:      snap.ErrorMessage,
		Captured:          snap.Captured,
		UserID:            snap.UserID,
	}
}
