package utils

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// SSEDone 是流结束时发送的终止标记。
const SSEDone = "[DONE]"

// SendSSEChunk 发送Server-Sent Events数据块
func SendSSEChunk(w http.ResponseWriter, flusher http.Flusher, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal sse payload: %w", err)
	}
	return writeSSE(w, flusher, "", data)
}

// SendSSEDone writes the terminal sentinel.
func SendSSEDone(w http.ResponseWriter, flusher http.Flusher) error {
	return writeSSE(w, flusher, "", []byte(SSEDone))
}

// SetupSSEHeaders 设置Server-Sent Events响应头
func SetupSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

// SendSSEEvent 发送带事件类型的SSE消息
func SendSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal sse event data: %w", err)
	}
	return writeSSE(w, flusher, event, data)
}

func writeSSE(w http.ResponseWriter, flusher http.Flusher, event string, data []byte) error {
	var err error
	if event != "" {
		_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	} else {
		_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	}
	if err != nil {
		return fmt.Errorf("write sse frame: %w", err)
	}
	flusher.Flush()
	return nil
}
