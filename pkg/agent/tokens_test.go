package agent

import (
	"fmt"
	"strings"
	"testing"

	"github.com/tickerdesk/tickerdesk/pkg/llms"
)

func TestNewTokenCounter(t *testing.T) {
	tests := []struct {
		name  string
		model string
	}{
		{name: "known_model", model: "gpt-4o"},
		{name: "unknown_model_falls_back", model: "totally-made-up-model"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			counter, err := NewTokenCounter(tt.model)
			if err != nil {
				t.Fatalf("NewTokenCounter(%q) failed: %v", tt.model, err)
			}
			if counter.Model() != tt.model {
				t.Errorf("Model() = %s, want %s", counter.Model(), tt.model)
			}
			if got := counter.Count("hello world"); got == 0 {
				t.Error("Count returned 0 for non-empty text")
			}
		})
	}
}

func TestCountScalesWithText(t *testing.T) {
	counter, err := NewTokenCounter("gpt-4o")
	if err != nil {
		t.Fatalf("NewTokenCounter failed: %v", err)
	}

	short := counter.Count("price")
	long := counter.Count(strings.Repeat("price momentum earnings ", 50))
	if long <= short {
		t.Errorf("Count(long) = %d, Count(short) = %d; want long > short", long, short)
	}
}

func TestCountMessagesIncludesOverhead(t *testing.T) {
	counter, err := NewTokenCounter("gpt-4o")
	if err != nil {
		t.Fatalf("NewTokenCounter failed: %v", err)
	}

	if got := counter.CountMessages(nil); got != 3 {
		t.Errorf("CountMessages(nil) = %d, want 3 (reply priming)", got)
	}

	msg := llms.Message{Role: llms.RoleUser, Content: "what is the price of AMZN"}
	contentOnly := counter.Count(msg.Content)
	withFraming := counter.CountMessages([]llms.Message{msg})
	if withFraming <= contentOnly {
		t.Errorf("CountMessages = %d, Count(content) = %d; want framing overhead", withFraming, contentOnly)
	}
}

func TestFitWithinLimitKeepsMostRecent(t *testing.T) {
	counter, err := NewTokenCounter("gpt-4o")
	if err != nil {
		t.Fatalf("NewTokenCounter failed: %v", err)
	}

	var messages []llms.Message
	for i := 0; i < 20; i++ {
		messages = append(messages, llms.Message{
			Role:    llms.RoleUser,
			Content: fmt.Sprintf("turn %d asks about a different ticker entirely", i),
		})
	}

	total := counter.CountMessages(messages)

	t.Run("generous_budget_keeps_all", func(t *testing.T) {
		fitted := counter.FitWithinLimit(messages, total)
		if len(fitted) != len(messages) {
			t.Errorf("kept %d of %d messages under a sufficient budget", len(fitted), len(messages))
		}
	})

	t.Run("tight_budget_keeps_suffix", func(t *testing.T) {
		fitted := counter.FitWithinLimit(messages, total/3)
		if len(fitted) == 0 {
			t.Fatal("kept no messages")
		}
		if len(fitted) >= len(messages) {
			t.Fatalf("kept %d messages, expected a strict subset", len(fitted))
		}

		// The kept messages must be the most recent ones, in order.
		offset := len(messages) - len(fitted)
		for i, msg := range fitted {
			if msg.Content != messages[offset+i].Content {
				t.Errorf("fitted[%d] = %q, want %q", i, msg.Content, messages[offset+i].Content)
			}
		}
	})

	t.Run("empty_input", func(t *testing.T) {
		if fitted := counter.FitWithinLimit(nil, 100); len(fitted) != 0 {
			t.Errorf("FitWithinLimit(nil) returned %d messages", len(fitted))
		}
	})
}
