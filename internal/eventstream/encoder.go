package eventstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"k8s.io/klog/v2"
)

// SetHeaders 设置 SSE 响应头
func SetHeaders(h http.Header) {
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
}

// Encoder 把事件编码为 "data: {json}\n\n" 帧并立即 flush
type Encoder struct {
	w       io.Writer
	flusher http.Flusher
}

func NewEncoder(w io.Writer) *Encoder {
	enc := &Encoder{w: w}
	if f, ok := w.(http.Flusher); ok {
		enc.flusher = f
	}
	return enc
}

func (e *Encoder) Encode(ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", ev.Type, err)
	}
	if _, err := fmt.Fprintf(e.w, "data: %s\n\n", payload); err != nil {
		return err
	}
	if e.flusher != nil {
		e.flusher.Flush()
	}
	return nil
}

// Relay 单一读取循环：按顺序消费事件并编码，直到终止事件、通道关闭或客户端断开。
// 返回最后一个终止事件；客户端断开时返回 ctx.Err()。
func Relay(ctx context.Context, events <-chan Event, enc *Encoder) (*Event, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil, nil
			}
			if err := enc.Encode(ev); err != nil {
				klog.Warningf("eventstream.Relay: write %s failed: %v", ev.Type, err)
				return nil, err
			}
			if ev.Terminal() {
				return &ev, nil
			}
		}
	}
}
