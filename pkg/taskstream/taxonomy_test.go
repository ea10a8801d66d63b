package taskstream

import (
	"errors"
	"testing"
)

func TestCategoryPartition(t *testing.T) {
	// Every known ask must land in exactly one category set.
	for _, ask := range KnownAsks() {
		predicates := 0
		if IsIdleAsk(ask) {
			predicates++
		}
		if IsInteractiveAsk(ask) {
			predicates++
		}
		if IsResumableAsk(ask) {
			predicates++
		}
		if IsNonBlockingAsk(ask) {
			predicates++
		}
		if predicates != 1 {
			t.Errorf("ask %q matched %d categories, want exactly 1", ask, predicates)
		}
	}
}

func TestCategoryOf(t *testing.T) {
	tests := []struct {
		ask  AskKind
		want AskCategory
	}{
		{AskCompletionResult, CategoryIdle},
		{AskAPIReqFailed, CategoryIdle},
		{AskResumeCompletedTask, CategoryIdle},
		{AskMistakeLimitReached, CategoryIdle},
		{AskAutoApprovalMaxReqReached, CategoryIdle},
		{AskFollowup, CategoryInteractive},
		{AskCommand, CategoryInteractive},
		{AskTool, CategoryInteractive},
		{AskBrowserActionLaunch, CategoryInteractive},
		{AskUseMCPServer, CategoryInteractive},
		{AskResumeTask, CategoryResumable},
		{AskCommandOutput, CategoryNonBlocking},
	}

	for _, tt := range tests {
		got, err := CategoryOf(tt.ask)
		if err != nil {
			t.Errorf("CategoryOf(%q) error = %v", tt.ask, err)
			continue
		}
		if got != tt.want {
			t.Errorf("CategoryOf(%q) = %v, want %v", tt.ask, got, tt.want)
		}
	}
}

func TestCategoryOf_UnknownAsk(t *testing.T) {
	_, err := CategoryOf(AskKind("telepathy"))
	if err == nil {
		t.Fatal("expected error for unknown ask kind")
	}

	var unknown *ErrUnknownAsk
	if !errors.As(err, &unknown) {
		t.Fatalf("error = %T, want *ErrUnknownAsk", err)
	}
	if unknown.Ask != "telepathy" {
		t.Errorf("unknown.Ask = %q, want %q", unknown.Ask, "telepathy")
	}
}

func TestPredicates_UnknownAsk(t *testing.T) {
	// No predicate may claim an ask outside the vocabulary.
	unknown := AskKind("telepathy")
	if IsIdleAsk(unknown) || IsInteractiveAsk(unknown) || IsResumableAsk(unknown) || IsNonBlockingAsk(unknown) {
		t.Error("unknown ask matched a category predicate")
	}
}

func TestKnownAsks_Complete(t *testing.T) {
	if got := len(KnownAsks()); got != 12 {
		t.Errorf("KnownAsks() has %d entries, want 12", got)
	}
}

func TestCategoryString(t *testing.T) {
	if CategoryIdle.String() != "idle" {
		t.Errorf("CategoryIdle.String() = %q", CategoryIdle.String())
	}
	if CategoryNonBlocking.String() != "non_blocking" {
		t.Errorf("CategoryNonBlocking.String() = %q", CategoryNonBlocking.String())
	}
}
