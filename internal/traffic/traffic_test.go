package traffic

import (
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

func TestRequestCount_Empty(t *testing.T) {
	tr := NewTracker()
	if n := tr.RequestCount(time.Minute); n != 0 {
		t.Errorf("RequestCount() = %d, want 0", n)
	}
}

// TestRecordDenied_AndCounts verifies denials count toward both DenialCount
// and RequestCount.
func TestRecordDenied_AndCounts(t *testing.T) {
	tr := NewTracker()
	tr.RecordSuccess()
	tr.RecordDenied()
	tr.RecordDenied()
	if n := tr.DenialCount(time.Minute); n != 2 {
		t.Errorf("DenialCount() = %d, want 2", n)
	}
	if n := tr.RequestCount(time.Minute); n != 3 {
		t.Errorf("RequestCount() = %d, want 3", n)
	}
}

// TestErrorRate_DeniedExcluded verifies the error rate ignores denials.
func TestErrorRate_DeniedExcluded(t *testing.T) {
	tr := NewTracker()
	tr.RecordSuccess()
	tr.RecordSuccess()
	tr.RecordError()
	tr.RecordDenied()
	errors, total := tr.ErrorRate(time.Minute)
	if errors != 1 || total != 3 {
		t.Errorf("ErrorRate() = (%d, %d), want (1, 3)", errors, total)
	}
}

// TestWindow_ExcludesOldOutcomes verifies outcomes older than the window are
// not counted and outcomes past retention are pruned.
func TestWindow_ExcludesOldOutcomes(t *testing.T) {
	clock := clockwork.NewFakeClock()
	tr := NewTrackerWithClock(clock)

	tr.RecordError()
	clock.Advance(90 * time.Second)
	tr.RecordSuccess()

	if errors, total := tr.ErrorRate(time.Minute); errors != 0 || total != 1 {
		t.Errorf("ErrorRate(1m) = (%d, %d), want (0, 1)", errors, total)
	}
	if n := tr.RequestCount(2 * time.Minute); n != 2 {
		t.Errorf("RequestCount(2m) = %d, want 2", n)
	}

	clock.Advance(retention)
	tr.RecordSuccess()
	tr.mu.Lock()
	remaining := len(tr.errorTimes) + len(tr.successTimes)
	tr.mu.Unlock()
	if remaining != 2 {
		t.Errorf("retained outcomes = %d, want 2 after prune", remaining)
	}
}

func TestReset(t *testing.T) {
	tr := NewTracker()
	tr.RecordSuccess()
	tr.RecordError()
	tr.RecordDenied()
	tr.Reset()
	if n := tr.RequestCount(time.Minute); n != 0 {
		t.Errorf("RequestCount() after Reset = %d, want 0", n)
	}
}

func TestTracker_Concurrent(t *testing.T) {
	tr := NewTracker()
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				tr.RecordSuccess()
				tr.RecordError()
				_, _ = tr.ErrorRate(time.Minute)
			}
		}()
	}
	wg.Wait()
	if errors, total := tr.ErrorRate(time.Minute); errors != 500 || total != 1000 {
		t.Errorf("ErrorRate() = (%d, %d), want (500, 1000)", errors, total)
	}
}
