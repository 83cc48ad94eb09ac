package server

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/AlverezYari/poseframe/internal/capture"
	"github.com/AlverezYari/poseframe/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
)

type stubSession struct {
	mu   sync.Mutex
	snap capture.Snapshot
	ch   chan capture.Snapshot
}

func (s *stubSession) Snapshot() capture.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

func (s *stubSession) Subscribe() (<-chan capture.Snapshot, func()) {
	return s.ch, func() {}
}

type solidSource struct{ img image.Image }

func (s solidSource) Frame() (image.Image, bool) { return s.img, true }

func newImage() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for x := 0; x < 8; x++ {
		for y := 0; y < 8; y++ {
			img.Set(x, y, color.RGBA{R: 200, A: 255})
		}
	}
	return img
}

func capturingSnapshot() capture.Snapshot {
	return capture.Snapshot{
		SessionID:   "abc",
		State:       capture.StateCapturing,
		Identity:    domain.Identity{FirstName: "Ada", LastName: "Lovelace"},
		Position:    domain.PositionSideways,
		Recognizing: true,
		Instruction: capture.Prompt(domain.PositionSideways),
		Captured:    [domain.SlotCount]bool{true, false, false},
	}
}

func wsURL(ts *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + path
}

func TestStatusReturnsSnapshot(t *testing.T) {
	srv := New(Options{Session: &stubSession{snap: capturingSnapshot()}})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/status")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var got snapshotView
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.State != "capturing" || got.Position != "sideways" || !got.Recognizing {
		t.Fatalf("status = %+v", got)
	}
	if got.Captured != [domain.SlotCount]bool{true, false, false} {
		t.Fatalf("captured = %v", got.Captured)
	}
}

func TestStatusRejectsPost(t *testing.T) {
	srv := New(Options{Session: &stubSession{}})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/status", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("status code = %d", resp.StatusCode)
	}
}

func TestSessionStreamSendsSnapshots(t *testing.T) {
	session := &stubSession{ch: make(chan capture.Snapshot, 2)}
	srv := New(Options{Session: session})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts, "/ws/session"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	session.ch <- capturingSnapshot()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var got snapshotView
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.SessionID != "abc" || got.FirstName != "Ada" {
		t.Fatalf("snapshot = %+v", got)
	}

	close(session.ch)
	if _, _, err := conn.ReadMessage(); !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Fatalf("expected going-away close, got %v", err)
	}
}

func TestPreviewStreamsBoundSource(t *testing.T) {
	srv := New(Options{FrameInterval: 5 * time.Millisecond})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts, "/ws/preview"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	srv.Bind(solidSource{img: newImage()})
	defer srv.Unbind()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	kind, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if kind != websocket.BinaryMessage {
		t.Fatalf("message type = %d", kind)
	}
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("frame is not a jpeg: %v", err)
	}
	if img.Bounds().Dx() != 8 {
		t.Fatalf("frame width = %d", img.Bounds().Dx())
	}
}

func TestUnbindIsIdempotent(t *testing.T) {
	srv := New(Options{})
	srv.Unbind()
	srv.Bind(solidSource{img: newImage()})
	srv.Bind(solidSource{img: newImage()})
	srv.Unbind()
	srv.Unbind()
}

func TestMetricsRoute(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "poseframe_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()

	srv := New(Options{Gatherer: reg})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "poseframe_test_total 1") {
		t.Fatalf("metrics body = %s", body)
	}
}

func TestStartStop(t *testing.T) {
	srv := New(Options{Host: "127.0.0.1", Port: "0"})
	if err := srv.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !srv.IsRunning() {
		t.Fatal("expected running")
	}
	if err := srv.Start(); err == nil {
		t.Fatal("expected error on second Start")
	}

	resp, err := http.Get("http://" + srv.Addr() + "/")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	if err := srv.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := srv.Stop(); err == nil {
		t.Fatal("expected error when stopping a stopped server")
	}
}
