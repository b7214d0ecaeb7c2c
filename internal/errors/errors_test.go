package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestGetSuggestion(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"explicit", WithSuggestion(errors.New("boom"), "try again"), "try again"},
		{"device", fmt.Errorf("player 3: %w", ErrDeviceNotFound), "Run 'decklink devices' to see which players are on the network"},
		{"passive", ErrPassive, "Attach an archive for the slot, or set finder.passive = false"},
		{"timeout text", errors.New("dial tcp: i/o timeout"), "Check that the player is powered on and reachable on the same network"},
		{"unknown", errors.New("something else"), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetSuggestion(tt.err); got != tt.want {
				t.Errorf("GetSuggestion() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestWithSuggestionUnwraps(t *testing.T) {
	err := WithSuggestion(ErrFormat, "x")
	if !errors.Is(err, ErrFormat) {
		t.Errorf("errors.Is(err, ErrFormat) = false, want true")
	}
}

func TestFormat(t *testing.T) {
	got := Format(ErrFormat)
	if !strings.HasPrefix(got, "Error: invalid archive format") || !strings.Contains(got, "Suggestion:") {
		t.Errorf("Format() = %q", got)
	}
	if Format(nil) != "" {
		t.Errorf("Format(nil) should be empty")
	}
}

func TestPartialResult(t *testing.T) {
	var p PartialResult[int]
	p.AddError(nil)
	if p.HasErrors() {
		t.Fatal("HasErrors() = true after adding nil")
	}
	p.AddError(errors.New("one"))
	if p.ErrorSummary() != "one" {
		t.Errorf("ErrorSummary() = %q, want %q", p.ErrorSummary(), "one")
	}
	p.AddError(errors.New("two"))
	if !strings.HasPrefix(p.ErrorSummary(), "2 errors occurred") {
		t.Errorf("ErrorSummary() = %q", p.ErrorSummary())
	}
}
