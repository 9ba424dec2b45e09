package eventbus

import (
	"testing"
)

func TestSubscribeReceivesLatestValue(t *testing.T) {
	topic := NewTopic[int]("scores", nil)
	topic.Publish(1)
	topic.Publish(2)

	ch, cancel := topic.Subscribe()
	defer cancel()
	select {
	case v := <-ch:
		if v != 2 {
			t.Fatalf("expected latest value 2, got %d", v)
		}
	default:
		t.Fatalf("expected latest value to be queued on subscribe")
	}
}

func TestSubscribeWithoutValueStartsEmpty(t *testing.T) {
	topic := NewTopic[string]("chat", nil)
	ch, cancel := topic.Subscribe()
	defer cancel()
	select {
	case v := <-ch:
		t.Fatalf("unexpected value %q", v)
	default:
	}
	if _, ok := topic.Latest(); ok {
		t.Fatalf("expected no latest value")
	}
}

func TestPublishFansOutInOrder(t *testing.T) {
	topic := NewTopic[int]("vision", nil)
	a, cancelA := topic.Subscribe()
	defer cancelA()
	b, cancelB := topic.Subscribe()
	defer cancelB()

	for i := 1; i <= 3; i++ {
		topic.Publish(i)
	}
	for _, ch := range []<-chan int{a, b} {
		for want := 1; want <= 3; want++ {
			if got := <-ch; got != want {
				t.Fatalf("expected %d, got %d", want, got)
			}
		}
	}
}

func TestSlowSubscriberKeepsNewestValue(t *testing.T) {
	topic := NewTopic[int]("audio", nil, WithDepth(2))
	ch, cancel := topic.Subscribe()
	defer cancel()

	for i := 1; i <= 5; i++ {
		topic.Publish(i)
	}
	first := <-ch
	second := <-ch
	if first != 4 || second != 5 {
		t.Fatalf("expected 4,5 after conflation, got %d,%d", first, second)
	}
	if topic.Dropped() != 3 {
		t.Fatalf("expected 3 dropped values, got %d", topic.Dropped())
	}
}

func TestUnsubscribeClosesChannelOnce(t *testing.T) {
	topic := NewTopic[int]("replies", nil)
	ch, cancel := topic.Subscribe()
	cancel()
	cancel()
	if _, ok := <-ch; ok {
		t.Fatalf("expected closed channel")
	}
	if topic.Subscribers() != 0 {
		t.Fatalf("expected no subscribers, got %d", topic.Subscribers())
	}
	topic.Publish(1)
}

func TestNilTopicIsInert(t *testing.T) {
	var topic *Topic[int]
	topic.Publish(1)
	ch, cancel := topic.Subscribe()
	cancel()
	if _, ok := <-ch; ok {
		t.Fatalf("expected closed channel from nil topic")
	}
}

func TestWithoutReplaySkipsLatest(t *testing.T) {
	topic := NewTopic[string]("suggestions", nil, WithoutReplay())
	topic.Publish("old")
	ch, cancel := topic.Subscribe()
	defer cancel()
	select {
	case v := <-ch:
		t.Fatalf("expected no replay, got %q", v)
	default:
	}
	topic.Publish("new")
	if v := <-ch; v != "new" {
		t.Fatalf("expected new, got %q", v)
	}
	if latest, ok := topic.Latest(); !ok || latest != "new" {
		t.Fatalf("expected latest new, got %q %v", latest, ok)
	}
}
