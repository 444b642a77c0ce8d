package telegram

import (
	"errors"
	"strings"
	"testing"

	tele "gopkg.in/telebot.v4"

	kit "gatebot/internal/transport"
)

func TestSplitText(t *testing.T) {
	t.Parallel()

	t.Run("short text untouched", func(t *testing.T) {
		t.Parallel()
		got := splitText("hello", 10)
		if len(got) != 1 || got[0] != "hello" {
			t.Fatalf("got %v", got)
		}
	})

	t.Run("prefers newline boundaries", func(t *testing.T) {
		t.Parallel()
		text := strings.Repeat("x", 8) + "\n" + strings.Repeat("y", 8)
		got := splitText(text, 10)
		if len(got) != 2 {
			t.Fatalf("got %d chunks: %v", len(got), got)
		}
		if got[0] != strings.Repeat("x", 8) || got[1] != strings.Repeat("y", 8) {
			t.Fatalf("got %v", got)
		}
	})

	t.Run("hard split without newlines", func(t *testing.T) {
		t.Parallel()
		got := splitText(strings.Repeat("a", 25), 10)
		if len(got) != 3 {
			t.Fatalf("got %d chunks: %v", len(got), got)
		}
		for i, c := range got[:2] {
			if len(c) != 10 {
				t.Fatalf("chunk %d len %d, want 10", i, len(c))
			}
		}
	})

	t.Run("no content lost", func(t *testing.T) {
		t.Parallel()
		text := strings.Repeat("line one\nline two\n", 50)
		joined := strings.Join(splitText(text, 64), "\n")
		if strings.ReplaceAll(joined, "\n", "") != strings.ReplaceAll(text, "\n", "") {
			t.Fatal("chunks dropped content")
		}
	})

	t.Run("multibyte runes stay intact", func(t *testing.T) {
		t.Parallel()
		text := strings.Repeat("🔑", 15)
		for _, chunk := range splitText(text, 10) {
			if strings.ContainsRune(chunk, '�') {
				t.Fatalf("chunk %q contains a broken rune", chunk)
			}
		}
	})
}

func TestCategorize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want error // sentinel expected via errors.Is; nil means passthrough
	}{
		{"nil", nil, nil},
		{"forbidden", &tele.Error{Code: 403, Description: "bot was blocked"}, kit.ErrForbidden},
		{"bad request", &tele.Error{Code: 400, Description: "chat not found"}, kit.ErrNotFound},
		{"not found", &tele.Error{Code: 404, Description: "not found"}, kit.ErrNotFound},
		{"other api error", &tele.Error{Code: 429, Description: "too many requests"}, nil},
		{"plain error", errors.New("conn reset"), nil},
	}
	for _, tt := range tests {
		got := categorize(tt.err)
		if tt.err == nil {
			if got != nil {
				t.Errorf("%s: got %v, want nil", tt.name, got)
			}
			continue
		}
		if tt.want != nil {
			if !errors.Is(got, tt.want) {
				t.Errorf("%s: got %v, want %v sentinel", tt.name, got, tt.want)
			}
			continue
		}
		if got == nil || errors.Is(got, kit.ErrForbidden) || errors.Is(got, kit.ErrNotFound) {
			t.Errorf("%s: got %v, want uncategorized passthrough", tt.name, got)
		}
	}
}
