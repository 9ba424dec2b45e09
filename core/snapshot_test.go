package core

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"pkt.systems/directorsync/schema"
)

func TestSnapshotStoreDefaults(t *testing.T) {
	store := NewSnapshotStore("")
	snap, ok := store.Current()
	if ok {
		t.Fatalf("expected no snapshot before the first replace")
	}
	if snap.Mood != schema.DefaultMood || snap.ConversationState != schema.DefaultConversationState {
		t.Fatalf("unexpected defaults %+v", snap)
	}
	if snap.StreamerLocked || snap.ContextLocked {
		t.Fatalf("expected unlocked defaults")
	}
	if snap.CurrentStreamer != schema.DefaultStreamer {
		t.Fatalf("expected default streamer, got %q", snap.CurrentStreamer)
	}
	if !store.UpdatedAt().IsZero() {
		t.Fatalf("expected zero update time")
	}
}

func TestSnapshotStoreReplaceIsWholesale(t *testing.T) {
	store := NewSnapshotStore("")
	store.Replace(schema.DirectorSnapshot{Mood: "Happy", Summary: "one", Memories: []schema.Memory{{Text: "m"}}}, time.Unix(1, 0))
	store.Replace(schema.DirectorSnapshot{Mood: "Sad"}, time.Unix(2, 0))
	snap, ok := store.Current()
	if !ok || snap.Mood != "Sad" || snap.Summary != "" || snap.Memories != nil {
		t.Fatalf("expected wholesale replacement, got %+v", snap)
	}
	if !store.UpdatedAt().Equal(time.Unix(2, 0)) {
		t.Fatalf("unexpected update time %v", store.UpdatedAt())
	}
}

func TestSnapshotStoreReturnsCopies(t *testing.T) {
	store := NewSnapshotStore("")
	input := schema.DirectorSnapshot{Memories: []schema.Memory{{Text: "a"}}}
	store.Replace(input, time.Now())
	input.Memories[0].Text = "changed"
	snap, _ := store.Current()
	snap.Memories[0].Text = "changed again"
	again, _ := store.Current()
	if again.Memories[0].Text != "a" {
		t.Fatalf("expected store to be isolated from callers, got %q", again.Memories[0].Text)
	}
}

func TestSnapshotStoreNoTornReads(t *testing.T) {
	store := NewSnapshotStore("")
	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			v := fmt.Sprint(i)
			store.Replace(schema.DirectorSnapshot{Summary: v, Mood: v, Intent: v, Flow: v}, time.Now())
		}
	}()
	for i := 0; i < 10000; i++ {
		snap, ok := store.Current()
		if !ok {
			continue
		}
		if snap.Summary != snap.Mood || snap.Mood != snap.Intent || snap.Intent != snap.Flow {
			close(stop)
			wg.Wait()
			t.Fatalf("torn snapshot %+v", snap)
		}
	}
	close(stop)
	wg.Wait()
}
