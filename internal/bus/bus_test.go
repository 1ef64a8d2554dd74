package bus

import "testing"

func TestPublishFansOut(t *testing.T) {
	b := New[int]()
	a := b.Subscribe(1)
	c := b.Subscribe(1)
	if n := b.Publish(7); n != 2 {
		t.Fatalf("delivered %d want 2", n)
	}
	if v := <-a.C(); v != 7 {
		t.Fatalf("a got %d", v)
	}
	if v := <-c.C(); v != 7 {
		t.Fatalf("c got %d", v)
	}
}

func TestPublishDropsWhenFull(t *testing.T) {
	b := New[string]()
	sub := b.Subscribe(1)
	b.Publish("first")
	if n := b.Publish("second"); n != 0 {
		t.Fatalf("full subscriber should be skipped, delivered %d", n)
	}
	if v := <-sub.C(); v != "first" {
		t.Fatalf("got %q", v)
	}
}

func TestUnsubscribeClosesHandle(t *testing.T) {
	b := New[int]()
	sub := b.Subscribe(0)
	b.Unsubscribe(sub)
	b.Unsubscribe(sub)
	if _, ok := <-sub.C(); ok {
		t.Fatal("channel should be closed")
	}
	if b.Len() != 0 {
		t.Fatalf("len %d", b.Len())
	}
	if n := b.Publish(1); n != 0 {
		t.Fatalf("delivered to removed subscriber")
	}
}

func TestCloseBus(t *testing.T) {
	b := New[int]()
	sub := b.Subscribe(1)
	b.Close()
	if _, ok := <-sub.C(); ok {
		t.Fatal("subscriber should be closed")
	}
	late := b.Subscribe(1)
	if _, ok := <-late.C(); ok {
		t.Fatal("subscription after close should be closed")
	}
	b.Unsubscribe(late)
}
