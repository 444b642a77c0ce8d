package broadcast

import (
	"reflect"
	"testing"
)

func TestParseButtons(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want ButtonRow
	}{
		{
			name: "single valid line",
			in:   "Buy - https://example.com",
			want: ButtonRow{{Label: "Buy", URL: "https://example.com"}},
		},
		{
			name: "mixed valid and invalid lines",
			in:   "Buy - https://x.com\nBadline\nJoin - ftp://y",
			want: ButtonRow{{Label: "Buy", URL: "https://x.com"}},
		},
		{
			name: "http scheme accepted",
			in:   "Site - http://plain.example",
			want: ButtonRow{{Label: "Site", URL: "http://plain.example"}},
		},
		{
			name: "splits on first separator only",
			in:   "A - B - https://example.com",
			want: nil, // url part is "B - https://example.com", not a link
		},
		{
			name: "label with inner dash kept whole",
			in:   "Go-Club - https://example.com/go",
			want: ButtonRow{{Label: "Go-Club", URL: "https://example.com/go"}},
		},
		{
			name: "empty label dropped",
			in:   " - https://example.com",
			want: nil,
		},
		{
			name: "whitespace trimmed around label and url",
			in:   "  News   -   https://news.example  ",
			want: ButtonRow{{Label: "News", URL: "https://news.example"}},
		},
		{
			name: "multiple valid lines preserve order",
			in:   "One - https://1.example\nTwo - https://2.example",
			want: ButtonRow{{Label: "One", URL: "https://1.example"}, {Label: "Two", URL: "https://2.example"}},
		},
		{
			name: "empty input",
			in:   "",
			want: nil,
		},
		{
			name: "no separator at all",
			in:   "just some text\nanother line",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := ParseButtons(tt.in)
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("ParseButtons(%q) = %#v, want %#v", tt.in, got, tt.want)
			}
		})
	}
}

func TestButtonRowMarkup(t *testing.T) {
	t.Parallel()

	if got := (ButtonRow{}).Markup(); got != nil {
		t.Fatalf("empty row markup = %v, want nil", got)
	}
	if got := (ButtonRow(nil)).Markup(); got != nil {
		t.Fatalf("nil row markup = %v, want nil", got)
	}
	if got := (ButtonRow{{Label: "A", URL: "https://a"}}).Markup(); got == nil {
		t.Fatal("non-empty row markup = nil, want keyboard")
	}
}
