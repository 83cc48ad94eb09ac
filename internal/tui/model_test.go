package tui

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/AlverezYari/poseframe/internal/capture"
	"github.com/AlverezYari/poseframe/internal/domain"
	tea "github.com/charmbracelet/bubbletea"
)

type fakeController struct {
	mu       sync.Mutex
	started  []domain.Identity
	stops    int
	retries  int
	startErr error
	snap     capture.Snapshot
}

func (c *fakeController) Start(_ context.Context, identity domain.Identity) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.started = append(c.started, identity)
	return c.startErr
}

func (c *fakeController) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stops++
	return nil
}

func (c *fakeController) RetryPersist() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.retries++
	return capture.ErrNothingToRetry
}

func (c *fakeController) Snapshot() capture.Snapshot { return c.snap }

func typeText(t *testing.T, m Model, text string) Model {
	t.Helper()
	for _, r := range text {
		next, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
		m = next.(Model)
	}
	return m
}

func press(m Model, k tea.KeyType) (Model, tea.Cmd) {
	next, cmd := m.Update(tea.KeyMsg{Type: k})
	return next.(Model), cmd
}

func TestEnterMovesFocusThenStarts(t *testing.T) {
	ctrl := &fakeController{snap: capture.Snapshot{State: capture.StateIdle}}
	m := New(Options{Controller: ctrl})

	m = typeText(t, m, "Ada")
	m, _ = press(m, tea.KeyEnter)
	if m.focus != fieldLast {
		t.Fatalf("focus = %d, want last field", m.focus)
	}
	m = typeText(t, m, "Lovelace")

	m, cmd := press(m, tea.KeyEnter)
	if cmd == nil || !m.starting {
		t.Fatal("expected a start command")
	}
	next, _ := m.Update(cmd())
	m = next.(Model)

	if len(ctrl.started) != 1 {
		t.Fatalf("starts = %d, want 1", len(ctrl.started))
	}
	if got := ctrl.started[0]; got.FirstName != "Ada" || got.LastName != "Lovelace" {
		t.Fatalf("identity = %+v", got)
	}
	if m.starting || m.status != "Capturing" {
		t.Fatalf("starting=%v status=%q", m.starting, m.status)
	}
}

func TestStartFailureReported(t *testing.T) {
	ctrl := &fakeController{startErr: domain.ErrValidation}
	m := New(Options{Controller: ctrl})

	m, cmd := press(m, tea.KeyCtrlS)
	if cmd == nil {
		t.Fatal("expected a start command")
	}
	next, _ := m.Update(cmd())
	m = next.(Model)
	if m.status != "First and last name are required" {
		t.Fatalf("status = %q", m.status)
	}
}

func TestStopAndRetryKeys(t *testing.T) {
	ctrl := &fakeController{}
	m := New(Options{Controller: ctrl})

	m, cmd := press(m, tea.KeyCtrlX)
	next, _ := m.Update(cmd())
	m = next.(Model)
	if ctrl.stops != 1 || m.status != "Stopped" {
		t.Fatalf("stops=%d status=%q", ctrl.stops, m.status)
	}

	m, cmd = press(m, tea.KeyCtrlR)
	next, _ = m.Update(cmd())
	m = next.(Model)
	if ctrl.retries != 1 || m.status != "Nothing to retry" {
		t.Fatalf("retries=%d status=%q", ctrl.retries, m.status)
	}
}

func TestInputsLockedWhileCapturing(t *testing.T) {
	m := New(Options{Controller: &fakeController{}})
	next, _ := m.Update(snapshotMsg(capture.Snapshot{State: capture.StateCapturing, Position: domain.PositionFront}))
	m = next.(Model)

	m = typeText(t, m, "x")
	if v := m.inputs[fieldFirst].Value(); v != "" {
		t.Fatalf("first name = %q, want locked", v)
	}
}

func TestSnapshotFollowsSubscription(t *testing.T) {
	updates := make(chan capture.Snapshot, 1)
	m := New(Options{Controller: &fakeController{}, Updates: updates})

	updates <- capture.Snapshot{
		State:       capture.StateCapturing,
		Position:    domain.PositionSideways,
		Recognizing: true,
		Instruction: capture.Prompt(domain.PositionSideways),
		Captured:    [domain.SlotCount]bool{true, false, false},
	}
	next, cmd := m.Update(waitForSnapshot(updates)())
	m = next.(Model)
	if cmd == nil {
		t.Fatal("expected the subscription to be re-armed")
	}

	view := m.View()
	for _, want := range []string{capture.Prompt(domain.PositionSideways), "Recognizing", "[x] front", "[>] sideways", "[ ] down"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}

	close(updates)
	next, _ = m.Update(cmd())
	if next.(Model).status != "Session closed" {
		t.Fatalf("status = %q", next.(Model).status)
	}
}

func TestQuitKeys(t *testing.T) {
	m := New(Options{})
	for _, k := range []tea.KeyType{tea.KeyCtrlC, tea.KeyEsc} {
		_, cmd := press(m, k)
		if cmd == nil {
			t.Fatalf("key %v: expected quit", k)
		}
		if _, ok := cmd().(tea.QuitMsg); !ok {
			t.Fatalf("key %v: expected tea.QuitMsg", k)
		}
	}
}
