package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSanitizeSite(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard http", "http://example.com/path", "example.com"},
		{"standard https", "https://Www.Upwork.com/jobs/x", "www.upwork.com"},
		{"no scheme", "example.com/path", "example.com"},
		{"host with port", "localhost:8191", "localhost"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeSite(tc.input); got != tc.expected {
				t.Errorf("SanitizeSite(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestInitIsIdempotent(t *testing.T) {
	Init()
	Init()

	if fetchTotal == nil || postingsTotal == nil || processedTotal == nil ||
		alertsTotal == nil || httpRequestsTotal == nil {
		t.Fatal("Init() did not initialize metrics collectors")
	}
}

func TestObserveHelpers(t *testing.T) {
	Init()

	beforeStored := testutil.ToFloat64(postingsTotal.WithLabelValues("stored"))
	ObservePosting("stored")
	if got := testutil.ToFloat64(postingsTotal.WithLabelValues("stored")); got != beforeStored+1 {
		t.Errorf("expected stored postings to increase by 1, got %f -> %f", beforeStored, got)
	}

	beforeFetch := testutil.ToFloat64(fetchTotal.WithLabelValues("detail", "ok"))
	ObserveFetch("detail", "ok", 2*time.Second)
	if got := testutil.ToFloat64(fetchTotal.WithLabelValues("detail", "ok")); got != beforeFetch+1 {
		t.Errorf("expected detail fetches to increase by 1, got %f -> %f", beforeFetch, got)
	}

	SetNullBudgetRatio(0.25)
	if got := testutil.ToFloat64(nullBudgetRatio); got != 0.25 {
		t.Errorf("expected null budget ratio 0.25, got %f", got)
	}

	beforeAlert := testutil.ToFloat64(alertsTotal.WithLabelValues("telegram", "failed"))
	ObserveAlert("telegram", "failed")
	if got := testutil.ToFloat64(alertsTotal.WithLabelValues("telegram", "failed")); got != beforeAlert+1 {
		t.Errorf("expected failed alerts to increase by 1, got %f -> %f", beforeAlert, got)
	}
}

// Fuzz test for SanitizeSite.
func FuzzSanitizeSite(f *testing.F) {
	testcases := []string{"http://example.com", "https://www.upwork.com/jobs/~01", "ftp://example.com"}
	for _, tc := range testcases {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		if SanitizeSite(orig) == "" {
			t.Errorf("SanitizeSite(%q) returned an empty string", orig)
		}
	})
}
