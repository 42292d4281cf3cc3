package usage

import "testing"

func TestUsage_Total(t *testing.T) {
	u := &Usage{InputTokens: 100, OutputTokens: 200, CacheReadTokens: 50, CacheWriteTokens: 25}
	if u.Total() != 375 {
		t.Errorf("Total() = %d, want 375", u.Total())
	}
}

func TestUsage_Add(t *testing.T) {
	u1 := &Usage{InputTokens: 100, OutputTokens: 200}
	u2 := &Usage{InputTokens: 50, OutputTokens: 75}
	u1.Add(u2)
	if u1.InputTokens != 150 || u1.OutputTokens != 275 {
		t.Fatalf("unexpected sum: %+v", u1)
	}
}

func TestUsage_AddNil(t *testing.T) {
	u := &Usage{InputTokens: 100}
	u.Add(nil)
	if u.InputTokens != 100 {
		t.Fatal("adding nil should not change usage")
	}
}

func TestCost_Estimate(t *testing.T) {
	cost := &Cost{Input: 3.0, Output: 15.0, CacheRead: 0.3, CacheWrite: 3.75}
	usage := &Usage{InputTokens: 1000, OutputTokens: 500, CacheReadTokens: 100}
	got := cost.Estimate(usage)
	want := (1000*3.0 + 500*15.0 + 100*0.3) / 1_000_000
	if got != want {
		t.Fatalf("Estimate() = %v, want %v", got, want)
	}
}

func TestTracker_RecordAccumulatesByRouteModelAndTrace(t *testing.T) {
	tr := NewTracker(DefaultTrackerConfig())
	tr.Record(Record{TraceID: "t1", Route: "search", Model: "m1", Usage: Usage{InputTokens: 10, OutputTokens: 5}})
	tr.Record(Record{TraceID: "t1", Route: "search", Model: "m1", Usage: Usage{InputTokens: 20, OutputTokens: 10}})

	totals := tr.GetTotals("search", "m1")
	if totals == nil || totals.InputTokens != 30 || totals.OutputTokens != 15 {
		t.Fatalf("unexpected route totals: %+v", totals)
	}

	traceTotals := tr.GetTraceTotals("t1")
	if traceTotals == nil || traceTotals.Total() != 45 {
		t.Fatalf("unexpected trace totals: %+v", traceTotals)
	}
}

func TestTracker_GetRecentRecordsReturnsMostRecent(t *testing.T) {
	tr := NewTracker(DefaultTrackerConfig())
	for i := 0; i < 5; i++ {
		tr.Record(Record{TraceID: "t", Route: "chat", Model: "m"})
	}
	recs := tr.GetRecentRecords(2)
	if len(recs) != 2 {
		t.Fatalf("expected 2 recent records, got %d", len(recs))
	}
}

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		name string
		text string
		want int
	}{
		{"empty", "", 0},
		{"short", "hi", 1},
		{"sixteen chars", "1234567890123456", 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EstimateTokens(tt.text); got != tt.want {
				t.Fatalf("EstimateTokens(%q) = %d, want %d", tt.text, got, tt.want)
			}
		})
	}
}

func TestBudgetExceeded(t *testing.T) {
	tests := []struct {
		name                  string
		maxIn, maxOut         int
		estIn, estOut         int
		want                  bool
	}{
		{"unbounded ceilings never exceed", 0, 0, 100000, 100000, false},
		{"input over ceiling", 100, 0, 150, 0, true},
		{"output over ceiling", 0, 100, 0, 150, true},
		{"within ceilings", 100, 100, 50, 50, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := BudgetExceeded(tt.maxIn, tt.maxOut, tt.estIn, tt.estOut); got != tt.want {
				t.Fatalf("BudgetExceeded() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFormatTokenCount(t *testing.T) {
	tests := []struct {
		count int64
		want  string
	}{
		{0, "0"},
		{500, "500"},
		{1500, "1.5k"},
		{15000, "15k"},
		{1500000, "1.5m"},
	}
	for _, tt := range tests {
		if got := FormatTokenCount(tt.count); got != tt.want {
			t.Fatalf("FormatTokenCount(%d) = %q, want %q", tt.count, got, tt.want)
		}
	}
}

func TestFormatUSD(t *testing.T) {
	if got := FormatUSD(0); got != "" {
		t.Fatalf("expected empty string for zero amount, got %q", got)
	}
	if got := FormatUSD(1.234); got != "$1.23" {
		t.Fatalf("FormatUSD(1.234) = %q", got)
	}
}
