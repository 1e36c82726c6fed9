package orchestrator

import (
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/rlaau/swapsentry/shared/domain"
	"github.com/rlaau/swapsentry/shared/mode"
)

func TestConsumerName_MatchesHostPidIndex(t *testing.T) {
	name := consumerName("", 3)
	wantHost, _ := os.Hostname()
	want := "parser-" + wantHost + "-" + strconv.Itoa(os.Getpid()) + "-3"
	if name != want {
		t.Fatalf("consumerName(\"\", 3) = %q, want %q", name, want)
	}
}

func TestConsumerName_DistinctAcrossIndices(t *testing.T) {
	if consumerName("", 0) == consumerName("", 1) {
		t.Fatalf("consumerName(\"\", 0) and consumerName(\"\", 1) must differ")
	}
	if !strings.HasSuffix(consumerName("", 0), "-0") {
		t.Fatalf("consumerName(\"\", 0) = %q, want suffix -0", consumerName("", 0))
	}
}

func TestConsumerName_OverrideReplacesAutoPrefix(t *testing.T) {
	name := consumerName("custom-name", 2)
	if name != "custom-name-2" {
		t.Fatalf("consumerName(\"custom-name\", 2) = %q, want %q", name, "custom-name-2")
	}
}

func TestBoolFloat(t *testing.T) {
	if boolFloat(true) != 1 {
		t.Fatalf("boolFloat(true) = %v, want 1", boolFloat(true))
	}
	if boolFloat(false) != 0 {
		t.Fatalf("boolFloat(false) = %v, want 0", boolFloat(false))
	}
}

func TestOrchestrator_ProcessingLag_TracksLastProcessed(t *testing.T) {
	o := &Orchestrator{}
	o.lastProcessed.Store(time.Now().Add(-3 * time.Second).UnixNano())

	lag := o.ProcessingLag()
	if lag < 2*time.Second || lag > 10*time.Second {
		t.Fatalf("ProcessingLag() = %v, want ~3s", lag)
	}
}

func TestToSummary_StampsCountedLiveFromMode(t *testing.T) {
	var mint domain.Address
	mint[31] = 1
	evt := domain.SwapEvent{BaseMint: mint}

	normal := toSummary(evt, mode.Normal.UpdateCounters())
	if !normal.CountedLive {
		t.Fatalf("NORMAL mode swap should be marked CountedLive")
	}
	degraded := toSummary(evt, mode.Degraded.UpdateCounters())
	if !degraded.CountedLive {
		t.Fatalf("DEGRADED mode swap should be marked CountedLive")
	}
	critical := toSummary(evt, mode.Critical.UpdateCounters())
	if critical.CountedLive {
		t.Fatalf("CRITICAL mode swap should not be marked CountedLive")
	}
}

func TestOrchestrator_EvictStaleActive_RemovesOldEntries(t *testing.T) {
	o := &Orchestrator{}
	now := time.Now()

	var fresh, stale domain.Address
	fresh[0] = 1
	stale[0] = 2
	o.active.Store(fresh, now)
	o.active.Store(stale, now.Add(-3*time.Hour))

	o.evictStaleActive(now)

	if _, ok := o.active.Load(fresh); !ok {
		t.Fatalf("fresh entry should survive eviction")
	}
	if _, ok := o.active.Load(stale); ok {
		t.Fatalf("stale entry should be evicted")
	}
}
