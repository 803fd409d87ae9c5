package handler

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/attendify/attendance-server-go/internal/sse"
)

func TestEventsHandler_sendEvent(t *testing.T) {
	t.Run("formats SSE event correctly", func(t *testing.T) {
		handler := &EventsHandler{}
		rec := httptest.NewRecorder()
		flusher := rec // httptest.ResponseRecorder implements http.Flusher

		data := map[string]any{
			"sessionId": "sess-1",
			"status":    "ongoing",
		}

		err := handler.sendEvent(rec, flusher, "connected", data)

		assert.NoError(t, err)
		body := rec.Body.String()
		assert.Contains(t, body, "event: connected\n")
		assert.Contains(t, body, "data: ")
		assert.Contains(t, body, "sess-1")
	})
}

func TestEventsHandler_sendRawEvent(t *testing.T) {
	t.Run("writes event and data lines", func(t *testing.T) {
		handler := &EventsHandler{}
		rec := httptest.NewRecorder()
		flusher := rec

		event := sse.Event{
			Type: "checkin",
			Data: json.RawMessage(`{"studentName": "Test Student"}`),
		}

		err := handler.sendRawEvent(rec, flusher, event)

		assert.NoError(t, err)
		body := rec.Body.String()
		assert.Contains(t, body, "event: checkin\n")
		assert.Contains(t, body, `data: {"studentName": "Test Student"}`)
		assert.Contains(t, body, "\n\n")
	})
}

func TestSSEEventFormat(t *testing.T) {
	tests := []struct {
		name      string
		eventType string
		data      map[string]any
		wantEvent string
	}{
		{
			name:      "connected event",
			eventType: "connected",
			data:      map[string]any{"sessionId": "sess-1", "status": "ongoing"},
			wantEvent: "event: connected\n",
		},
		{
			name:      "checkin event",
			eventType: "checkin",
			data:      map[string]any{"attendanceId": "att-1", "studentName": "Test Student"},
			wantEvent: "event: checkin\n",
		},
		{
			name:      "passcode_updated event",
			eventType: "passcode_updated",
			data:      map[string]any{"sessionId": "sess-1"},
			wantEvent: "event: passcode_updated\n",
		},
		{
			name:      "status_changed event",
			eventType: "status_changed",
			data:      map[string]any{"sessionId": "sess-1", "status": "completed"},
			wantEvent: "event: status_changed\n",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			handler := &EventsHandler{}
			rec := httptest.NewRecorder()

			err := handler.sendEvent(rec, rec, tc.eventType, tc.data)

			assert.NoError(t, err)
			body := rec.Body.String()
			assert.Contains(t, body, tc.wantEvent)
			assert.Contains(t, body, "data: ")
		})
	}
}
