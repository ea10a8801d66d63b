package wsproto

import (
	"context"
	"encoding/json"
	"testing"
)

func TestDispatcherRoutesByAction(t *testing.T) {
	d := NewDispatcher()
	d.RegisterFunc(ActionHealthCheck, func(ctx context.Context, msg *Message) (*Message, error) {
		return NewResponse(msg.ID, msg.Action, map[string]string{"status": "ok"})
	})

	req, err := NewRequest("r1", ActionHealthCheck, nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	resp, err := d.Dispatch(context.Background(), req)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if resp.Type != MessageTypeResponse {
		t.Errorf("type = %q, want %q", resp.Type, MessageTypeResponse)
	}
	if resp.ID != "r1" {
		t.Errorf("id = %q, want r1", resp.ID)
	}

	var payload map[string]string
	if err := resp.ParsePayload(&payload); err != nil {
		t.Fatalf("ParsePayload: %v", err)
	}
	if payload["status"] != "ok" {
		t.Errorf("status = %q, want ok", payload["status"])
	}
}

func TestDispatcherUnknownAction(t *testing.T) {
	d := NewDispatcher()

	req, _ := NewRequest("r2", "no.such.action", nil)
	resp, err := d.Dispatch(context.Background(), req)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if resp.Type != MessageTypeError {
		t.Fatalf("type = %q, want error", resp.Type)
	}

	var payload ErrorPayload
	if err := resp.ParsePayload(&payload); err != nil {
		t.Fatalf("ParsePayload: %v", err)
	}
	if payload.Code != ErrorCodeUnknownAction {
		t.Errorf("code = %q, want %q", payload.Code, ErrorCodeUnknownAction)
	}
}

func TestMessageRoundTrip(t *testing.T) {
	msg, err := NewNotification(ActionTaskStateChanged, map[string]string{"state": "streaming"})
	if err != nil {
		t.Fatalf("NewNotification: %v", err)
	}

	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded Message
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded.Action != ActionTaskStateChanged {
		t.Errorf("action = %q, want %q", decoded.Action, ActionTaskStateChanged)
	}
	if decoded.ID != "" {
		t.Errorf("notification should carry no id, got %q", decoded.ID)
	}
}
