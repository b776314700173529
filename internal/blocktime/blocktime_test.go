package blocktime

import (
	"errors"
	"testing"
	"time"
)

func TestUnixSeconds(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		want   int64
		wantOK bool
	}{
		{
			name:   "milliseconds fraction",
			input:  "2023-08-21 12:34:56.789 UTC",
			want:   time.Date(2023, 8, 21, 12, 34, 56, 0, time.UTC).Unix(),
			wantOK: true,
		},
		{
			name:   "microseconds fraction",
			input:  "2023-08-21 12:34:56.789123 UTC",
			want:   1692621296,
			wantOK: true,
		},
		{
			name:   "no fraction",
			input:  "2022-12-31 00:00:00 UTC",
			want:   1672444800,
			wantOK: true,
		},
		{name: "invalid date", input: "invalid date", wantOK: false},
		{name: "slash format", input: "2023/08/21 12:34:56.789", wantOK: false},
		{name: "missing zone", input: "2023-08-21 12:34:56.789", wantOK: false},
		{name: "empty", input: "", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := UnixSeconds(tt.input)
			if ok != tt.wantOK {
				t.Fatalf("UnixSeconds(%q) ok = %v, want %v", tt.input, ok, tt.wantOK)
			}
			if ok && got != tt.want {
				t.Errorf("UnixSeconds(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

func TestParse_ReturnsSentinel(t *testing.T) {
	_, err := Parse("not a time")
	if !errors.Is(err, ErrInvalidBlockTime) {
		t.Errorf("expected ErrInvalidBlockTime, got %v", err)
	}
}

func TestDate(t *testing.T) {
	want := time.Date(2023, 8, 21, 0, 0, 0, 0, time.UTC)

	inputs := []string{
		"2023-08-21 12:34:56.789 UTC",
		"2023-08-21 23:59:59 UTC",
		"2023-08-21T12:34:56Z",
		"2023-08-21 12:34:56",
		"2023-08-21",
	}
	for _, in := range inputs {
		got, err := Date(in)
		if err != nil {
			t.Errorf("Date(%q) unexpected error: %v", in, err)
			continue
		}
		if !got.Equal(want) {
			t.Errorf("Date(%q) = %v, want %v", in, got, want)
		}
	}

	if _, err := Date(""); !errors.Is(err, ErrInvalidBlockTime) {
		t.Errorf("expected ErrInvalidBlockTime for empty input, got %v", err)
	}
	if _, err := Date("yesterday"); !errors.Is(err, ErrInvalidBlockTime) {
		t.Errorf("expected ErrInvalidBlockTime for garbage input, got %v", err)
	}
}
