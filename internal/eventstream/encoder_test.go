package eventstream

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/llmcouncil/backend/internal/domain"
)

func readFrames(t *testing.T, body string) []map[string]any {
	t.Helper()
	var frames []map[string]any
	scanner := bufio.NewScanner(strings.NewReader(body))
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "data: ") {
			t.Fatalf("unexpected line %q", line)
		}
		var frame map[string]any
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &frame); err != nil {
			t.Fatalf("invalid json frame %q: %v", line, err)
		}
		frames = append(frames, frame)
	}
	return frames
}

func TestEncoderFraming(t *testing.T) {
	rec := httptest.NewRecorder()
	enc := NewEncoder(rec)

	if err := enc.Encode(Stage1Progress(Progress{Model: "a/x", Status: StatusSuccess, Completed: 1, Total: 3})); err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := enc.Encode(Ping()); err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := enc.Encode(Error("boom", &domain.TurnResult{})); err != nil {
		t.Fatalf("encode: %v", err)
	}

	body := rec.Body.String()
	if !strings.HasSuffix(body, "\n\n") {
		t.Fatalf("frames must end with a blank line: %q", body)
	}
	if !rec.Flushed {
		t.Errorf("expected encoder to flush")
	}

	frames := readFrames(t, body)
	if len(frames) != 3 {
		t.Fatalf("expected 3 frames, got %d", len(frames))
	}
	progress := frames[0]["data"].(map[string]any)
	if frames[0]["type"] != "stage1_progress" || progress["model"] != "a/x" || progress["completed"].(float64) != 1 {
		t.Errorf("unexpected progress frame: %v", frames[0])
	}
	if _, ok := frames[1]["data"]; ok || frames[1]["type"] != "ping" {
		t.Errorf("ping must carry no data: %v", frames[1])
	}
	if frames[2]["type"] != "error" || frames[2]["message"] != "boom" {
		t.Errorf("unexpected error frame: %v", frames[2])
	}
	if _, ok := frames[2]["Result"]; ok {
		t.Errorf("result must not be serialized")
	}
}

func TestRelayStopsAtTerminal(t *testing.T) {
	events := make(chan Event, 4)
	events <- Stage1Start([]string{"a"})
	events <- Ping()
	events <- Complete(&domain.TurnResult{})
	events <- Stage1Start([]string{"never"})

	rec := httptest.NewRecorder()
	last, err := Relay(context.Background(), events, NewEncoder(rec))
	if err != nil {
		t.Fatalf("relay: %v", err)
	}
	if last == nil || last.Type != TypeComplete || last.Result == nil {
		t.Fatalf("expected complete as last event, got %+v", last)
	}
	if frames := readFrames(t, rec.Body.String()); len(frames) != 3 {
		t.Fatalf("expected 3 frames written, got %d", len(frames))
	}
}

func TestRelayClientGone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	events := make(chan Event)
	last, err := Relay(ctx, events, NewEncoder(httptest.NewRecorder()))
	if err == nil || last != nil {
		t.Fatalf("expected context error, got last=%v err=%v", last, err)
	}
}

func TestEventFlags(t *testing.T) {
	if Ping().Advances() {
		t.Errorf("ping must not advance progress")
	}
	if !Stage2Start(nil).Advances() {
		t.Errorf("stage events advance progress")
	}
	if !Error("x", nil).Terminal() || !Complete(nil).Terminal() || Ping().Terminal() {
		t.Errorf("unexpected terminal flags")
	}
}
