package utils

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestNormalizePage(t *testing.T) {
	cases := []struct {
		name              string
		page, limit, max  int
		wantPage, wantLim int
	}{
		{"valid values kept", 2, 20, 100, 2, 20},
		{"zero page clamped", 0, 20, 100, 1, 20},
		{"negative page clamped", -3, 20, 100, 1, 20},
		{"zero limit defaulted", 1, 0, 100, 1, 10},
		{"limit capped at max", 1, 500, 100, 1, 100},
		{"no cap when max is zero", 1, 500, 0, 1, 500},
	}
	for _, tc := range cases {
		got := NormalizePage(tc.page, tc.limit, tc.max)
		if got.Page != tc.wantPage || got.Limit != tc.wantLim {
			t.Errorf("%s: NormalizePage(%d, %d, %d) = %+v, want page=%d limit=%d",
				tc.name, tc.page, tc.limit, tc.max, got, tc.wantPage, tc.wantLim)
		}
	}
}

func TestPaginationOffset(t *testing.T) {
	if got := (Pagination{Page: 3, Limit: 20}).Offset(); got != 40 {
		t.Fatalf("Offset = %d, want 40", got)
	}
	if got := (Pagination{Page: 1, Limit: 10}).Offset(); got != 0 {
		t.Fatalf("Offset = %d, want 0", got)
	}
}

func TestNormalizeSearch(t *testing.T) {
	if got := NormalizeSearch("  Brake Pads  "); got != "brake pads" {
		t.Fatalf("NormalizeSearch = %q, want %q", got, "brake pads")
	}
	if got := NormalizeSearch(""); got != "" {
		t.Fatalf("NormalizeSearch empty = %q", got)
	}
}

func TestRetrySucceedsWithinAttempts(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), 3, time.Millisecond, func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestRetryExhaustsAttempts(t *testing.T) {
	wantErr := errors.New("permanent")
	calls := 0
	err := Retry(context.Background(), 3, time.Millisecond, func() error {
		calls++
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("Retry = %v, want %v", err, wantErr)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestRetryStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := Retry(ctx, 5, time.Hour, func() error {
		calls++
		return errors.New("transient")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Retry = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestSHA256Hash(t *testing.T) {
	got := SHA256Hash("hello")
	want := "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"
	if got != want {
		t.Fatalf("SHA256Hash = %q, want %q", got, want)
	}
	if SHA256Hash("hello") != got {
		t.Fatalf("hash not deterministic")
	}
}
