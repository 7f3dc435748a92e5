package numerator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
)

type mockRow struct {
	val int64
	err error
}

func (m *mockRow) Scan(dest ...any) error {
	if m.err != nil {
		return m.err
	}
	if len(dest) > 0 {
		if ptr, ok := dest[0].(*int64); ok {
			*ptr = m.val
		}
	}
	return nil
}

// mockQuerier simulates the sys_sequences UPSERT: every call bumps the
// stored value by the increment argument.
type mockQuerier struct {
	mu           sync.Mutex
	currentValue int64
	calls        int
}

func (m *mockQuerier) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	m.mu.Lock()
	defer m.mu.Unlock()

	var increment int64 = 1
	if len(args) == 2 {
		if val, ok := args[1].(int64); ok {
			increment = val
		}
	}

	m.currentValue += increment
	m.calls++

	return &mockRow{val: m.currentValue}
}

var fixedPeriod = time.Date(2026, 4, 15, 0, 0, 0, 0, time.UTC)

func TestGetNextNumber_Strict(t *testing.T) {
	q := &mockQuerier{}
	svc := New(q)
	ctx := context.Background()
	cfg := DefaultConfig("MVT")

	num, err := svc.GetNextNumber(ctx, cfg, nil, fixedPeriod)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if num != "MVT-2026-00001" {
		t.Errorf("expected MVT-2026-00001, got %s", num)
	}

	num, err = svc.GetNextNumber(ctx, cfg, nil, fixedPeriod)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if num != "MVT-2026-00002" {
		t.Errorf("expected MVT-2026-00002, got %s", num)
	}
}

func TestGetNextNumber_Cached(t *testing.T) {
	q := &mockQuerier{}
	svc := New(q)
	ctx := context.Background()
	cfg := DefaultConfig("DECL")

	opts := &Options{
		Strategy:  StrategyCached,
		RangeSize: 10,
	}

	// First call allocates 1..10 from DB and hands out 1.
	num, err := svc.GetNextNumber(ctx, cfg, opts, fixedPeriod)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if num != "DECL-2026-00001" {
		t.Errorf("expected DECL-2026-00001, got %s", num)
	}
	if q.currentValue != 10 {
		t.Errorf("expected DB value to be 10, got %d", q.currentValue)
	}

	// Second call comes from memory, DB untouched.
	num, err = svc.GetNextNumber(ctx, cfg, opts, fixedPeriod)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if num != "DECL-2026-00002" {
		t.Errorf("expected DECL-2026-00002, got %s", num)
	}
	if q.currentValue != 10 {
		t.Errorf("expected DB value to stay 10, got %d", q.currentValue)
	}

	// Exhaust the range; the next call allocates 11..20.
	for i := 0; i < 8; i++ {
		_, _ = svc.GetNextNumber(ctx, cfg, opts, fixedPeriod)
	}

	num, err = svc.GetNextNumber(ctx, cfg, opts, fixedPeriod)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if num != "DECL-2026-00011" {
		t.Errorf("expected DECL-2026-00011, got %s", num)
	}
	if q.currentValue != 20 {
		t.Errorf("expected DB value to be 20, got %d", q.currentValue)
	}
}

func TestNext_UsesRegisteredScope(t *testing.T) {
	q := &mockQuerier{}
	svc := New(q)
	ctx := context.Background()

	svc.RegisterScope("tax_movement", Config{
		Prefix:      "MVT",
		IncludeYear: true,
		PadWidth:    5,
		ResetPeriod: "year",
	})

	num, err := svc.Next(ctx, "tax_movement")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ParseNumber(num) != 1 {
		t.Errorf("expected sequence 1, got %s", num)
	}
	if num[:4] != "MVT-" {
		t.Errorf("expected MVT prefix, got %s", num)
	}
}

func TestNext_UnregisteredScopeFallsBack(t *testing.T) {
	q := &mockQuerier{}
	svc := New(q)

	num, err := svc.Next(context.Background(), "adhoc")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if num[:6] != "ADHOC-" {
		t.Errorf("expected upper-cased scope prefix, got %s", num)
	}
}

func TestParseNumber(t *testing.T) {
	cases := []struct {
		in   string
		want int64
	}{
		{"MVT-2026-00042", 42},
		{"DECL-00007", 7},
		{"garbage", -1},
		{"MVT-", -1},
		{"MVT-2026-xx", -1},
	}
	for _, tc := range cases {
		if got := ParseNumber(tc.in); got != tc.want {
			t.Errorf("ParseNumber(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
}
