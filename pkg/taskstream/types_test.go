package taskstream

import (
	"encoding/json"
	"testing"
)

func TestParseAPIReqInfo(t *testing.T) {
	t.Run("cost present", func(t *testing.T) {
		info := ParseAPIReqInfo(`{"cost":0.0012,"tokensIn":100,"tokensOut":42}`)
		if info.Cost == nil {
			t.Fatal("Cost is nil, want value")
		}
		if *info.Cost != 0.0012 {
			t.Errorf("Cost = %v, want 0.0012", *info.Cost)
		}
		if info.TokensIn != 100 || info.TokensOut != 42 {
			t.Errorf("tokens = (%d, %d), want (100, 42)", info.TokensIn, info.TokensOut)
		}
	})

	t.Run("cost absent means in flight", func(t *testing.T) {
		info := ParseAPIReqInfo(`{"tokensIn":10}`)
		if info.Cost != nil {
			t.Errorf("Cost = %v, want nil", *info.Cost)
		}
		if info.TokensIn != 10 {
			t.Errorf("TokensIn = %d, want 10", info.TokensIn)
		}
	})

	t.Run("malformed JSON reads as in flight", func(t *testing.T) {
		info := ParseAPIReqInfo(`{not json`)
		if info.Cost != nil {
			t.Error("malformed payload must leave Cost nil")
		}
	})

	t.Run("empty text reads as in flight", func(t *testing.T) {
		if info := ParseAPIReqInfo(""); info.Cost != nil {
			t.Error("empty payload must leave Cost nil")
		}
	})

	t.Run("zero cost is still present", func(t *testing.T) {
		info := ParseAPIReqInfo(`{"cost":0}`)
		if info.Cost == nil {
			t.Fatal("Cost = nil, want explicit zero")
		}
		if *info.Cost != 0 {
			t.Errorf("Cost = %v, want 0", *info.Cost)
		}
	})
}

func TestTaskMessage_JSON(t *testing.T) {
	raw := `{"ts":1736900000123,"type":"ask","ask":"tool","text":"write file?","partial":false}`

	var msg TaskMessage
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if msg.Ts != 1736900000123 {
		t.Errorf("Ts = %d", msg.Ts)
	}
	if msg.Type != MessageTypeAsk || msg.Ask != AskTool {
		t.Errorf("Type/Ask = %q/%q, want ask/tool", msg.Type, msg.Ask)
	}
	if !msg.IsFinal() {
		t.Error("IsFinal() = false, want true")
	}
}

func TestControlMessage_Builders(t *testing.T) {
	resp := NewAskResponse(AskResponseYes, "")
	if resp.Type != ControlAskResponse || resp.Response != AskResponseYes {
		t.Errorf("NewAskResponse = %+v", resp)
	}

	followup := NewMessageResponse("use the second option")
	if followup.Type != ControlMessageResponse || followup.Text != "use the second option" {
		t.Errorf("NewMessageResponse = %+v", followup)
	}

	task := NewTaskControl("fix the build")
	if task.Type != ControlNewTask || task.Text != "fix the build" {
		t.Errorf("NewTaskControl = %+v", task)
	}

	term := NewTerminalOperation(TerminalAbort)
	if term.Type != ControlTerminalOperation || term.Terminal != TerminalAbort {
		t.Errorf("NewTerminalOperation = %+v", term)
	}
}
