package metrics

import (
	"context"
	"testing"
)

// TestTimeSeriesRejectsUnknownPeriodBeforeTouchingTheDatabase resolves
// spec.md §9's open question about the TO_CHAR format parameter: an
// unrecognized period must be rejected by the whitelist before any query
// is built, so a nil db never gets dereferenced on the invalid path.
func TestTimeSeriesRejectsUnknownPeriodBeforeTouchingTheDatabase(t *testing.T) {
	s := &Store{db: nil}

	_, err := s.TimeSeries(context.Background(), 1, "monthly")
	if err == nil {
		t.Fatal("expected an error for an unsupported period")
	}
}

func TestPeriodFormatsOnlyContainsWhitelistedPeriods(t *testing.T) {
	want := map[string]bool{"hourly": true, "daily": true, "weekly": true}
	for period := range periodFormats {
		if !want[period] {
			t.Errorf("unexpected period %q in whitelist", period)
		}
	}
	for period := range want {
		if _, ok := periodFormats[period]; !ok {
			t.Errorf("expected %q to be in the whitelist", period)
		}
	}
}
