package lifecycle

import (
	"fmt"
	"testing"
	"time"
)

func TestActionLog_RingKeepsNewest(t *testing.T) {
	log := NewActionLog(3)
	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("a%d", i)
		log.start(id, "logreg", time.Now())
		log.finish(id, 1, "success", "", false)
	}
	snap := log.Snapshot()
	if len(snap.Recent) != 3 {
		t.Fatalf("recent = %d", len(snap.Recent))
	}
	for i, want := range []string{"a4", "a3", "a2"} {
		if snap.Recent[i].ID != want {
			t.Errorf("recent[%d] = %s, want %s", i, snap.Recent[i].ID, want)
		}
	}
}

func TestActionLog_InFlight(t *testing.T) {
	log := NewActionLog(3)
	log.start("x", "kmeans", time.Now())
	snap := log.Snapshot()
	if len(snap.InFlight) != 1 || snap.InFlight[0].Model != "kmeans" {
		t.Errorf("in flight = %+v", snap.InFlight)
	}
	log.finish("x", 2, "timeout", "request timed out", false)
	snap = log.Snapshot()
	if len(snap.InFlight) != 0 || snap.Recent[0].Error != "request timed out" || snap.Recent[0].EndTime == nil {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestActionLog_Nil(t *testing.T) {
	var log *ActionLog
	log.start("x", "", time.Now())
	log.finish("x", 0, "", "", false)
	if snap := log.Snapshot(); len(snap.Recent) != 0 {
		t.Error("nil log should be empty")
	}
}
