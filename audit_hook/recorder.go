package audithook

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

// JSONRecorder writes one JSON object per event to a writer.
type JSONRecorder struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewJSONRecorder returns a Recorder appending JSON lines to w.
func NewJSONRecorder(w io.Writer) *JSONRecorder {
	return &JSONRecorder{enc: json.NewEncoder(w)}
}

// Record implements Recorder.
func (r *JSONRecorder) Record(_ context.Context, event *AuditEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enc.Encode(event); err != nil {
		return fmt.Errorf("audit_hook: encode %s: %w", event.Action, err)
	}
	return nil
}
