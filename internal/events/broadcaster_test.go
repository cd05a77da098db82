package events

import (
	"testing"
	"time"
)

func TestBroadcasterSubscribeUnsubscribe(t *testing.T) {
	b := NewBroadcaster()

	ch1 := b.Subscribe()
	ch2 := b.Subscribe()

	if b.Count() != 2 {
		t.Fatalf("expected 2 subscribers, got %d", b.Count())
	}

	b.Unsubscribe(ch1)
	if b.Count() != 1 {
		t.Fatalf("expected 1 subscriber after unsubscribe, got %d", b.Count())
	}

	b.Unsubscribe(ch2)
	b.Unsubscribe(ch2) // second call is a no-op
	if b.Count() != 0 {
		t.Fatalf("expected 0 subscribers, got %d", b.Count())
	}
}

func TestBroadcasterEmit(t *testing.T) {
	b := NewBroadcaster()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.Emit(Event{Type: FileUploaded, Disk: "local", Path: "/docs/report.pdf"})

	select {
	case received := <-ch:
		if received.Type != FileUploaded {
			t.Errorf("expected type %s, got %s", FileUploaded, received.Type)
		}
		if received.Path != "/docs/report.pdf" || received.Disk != "local" {
			t.Errorf("unexpected event %+v", received)
		}
		if received.Timestamp == 0 {
			t.Error("expected non-zero timestamp")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestBroadcasterMultipleSubscribers(t *testing.T) {
	b := NewBroadcaster()
	ch1 := b.Subscribe()
	ch2 := b.Subscribe()
	defer b.Unsubscribe(ch1)
	defer b.Unsubscribe(ch2)

	b.Emit(Event{Type: FolderRemoved, Path: "/old"})

	for i, ch := range []chan Event{ch1, ch2} {
		select {
		case received := <-ch:
			if received.Path != "/old" {
				t.Errorf("subscriber %d: expected /old, got %s", i, received.Path)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d: timed out", i)
		}
	}
}

func TestBroadcasterDropsForSlowConsumer(t *testing.T) {
	b := NewBroadcaster()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	// Fill the channel buffer (64)
	for i := 0; i < 100; i++ {
		b.Emit(Event{Type: FileUploaded, Path: "/overflow.txt"})
	}

	count := 0
	for {
		select {
		case <-ch:
			count++
		default:
			if count != 64 {
				t.Errorf("expected 64 buffered events, got %d", count)
			}
			return
		}
	}
}

func TestMultiFansOutAndStampsTime(t *testing.T) {
	var got []Event
	record := SinkFunc(func(e Event) { got = append(got, e) })

	Multi(record, nil, record).Emit(Event{Type: FileRemoved, Path: "/a.txt"})

	if len(got) != 2 {
		t.Fatalf("expected 2 deliveries, got %d", len(got))
	}
	if got[0].Timestamp == 0 || got[0].Timestamp != got[1].Timestamp {
		t.Errorf("expected identical non-zero timestamps, got %d and %d", got[0].Timestamp, got[1].Timestamp)
	}
}

func TestMarshalEvent(t *testing.T) {
	data, err := MarshalEvent(Event{Type: FileRemoved, Disk: "local", Path: "/deleted.txt", Timestamp: 1234567890})
	if err != nil {
		t.Fatal(err)
	}
	want := `{"type":"file_removed","disk":"local","path":"/deleted.txt","timestamp":1234567890}`
	if string(data) != want {
		t.Errorf("got %s, want %s", data, want)
	}
}
