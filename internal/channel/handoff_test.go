package channel

import (
	"fmt"
	"sync"
	"testing"

	"tradesim/models"
)

func snap(id int) models.BookSnapshot {
	return models.BookSnapshot{Symbol: fmt.Sprintf("m%d", id)}
}

func TestHandoffPreservesOrder(t *testing.T) {
	q := NewHandoff(0)
	q.Enqueue(snap(1))
	q.Enqueue(snap(2))
	q.Enqueue(snap(3))

	got := q.DrainAll()
	if len(got) != 3 {
		t.Fatalf("drained %d items, want 3", len(got))
	}
	for i, s := range got {
		if want := fmt.Sprintf("m%d", i+1); s.Symbol != want {
			t.Fatalf("item %d = %s, want %s", i, s.Symbol, want)
		}
	}

	again := q.DrainAll()
	if again == nil || len(again) != 0 {
		t.Fatalf("second drain = %v, want empty slice", again)
	}
}

func TestHandoffUnboundedNeverDrops(t *testing.T) {
	q := NewHandoff(0)
	for i := 0; i < 10000; i++ {
		if !q.Enqueue(snap(i)) {
			t.Fatalf("unbounded queue dropped item %d", i)
		}
	}
	if q.Len() != 10000 {
		t.Fatalf("len = %d, want 10000", q.Len())
	}
	stats := q.Stats()
	if stats.Enqueued != 10000 || stats.Dropped != 0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestHandoffBoundedDropsOldest(t *testing.T) {
	q := NewHandoff(2)
	q.Enqueue(snap(1))
	q.Enqueue(snap(2))
	if q.Enqueue(snap(3)) {
		t.Fatal("expected drop to be reported")
	}

	got := q.DrainAll()
	if len(got) != 2 || got[0].Symbol != "m2" || got[1].Symbol != "m3" {
		t.Fatalf("unexpected contents after drop: %+v", got)
	}
	stats := q.Stats()
	if stats.Dropped != 1 || stats.Enqueued != 3 || stats.Drained != 2 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestHandoffConcurrentProducerConsumer(t *testing.T) {
	q := NewHandoff(0)
	const total = 5000

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < total; i++ {
			q.Enqueue(snap(i))
		}
	}()

	received := make([]models.BookSnapshot, 0, total)
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	for {
		received = append(received, q.DrainAll()...)
		select {
		case <-done:
			received = append(received, q.DrainAll()...)
			if len(received) != total {
				t.Fatalf("received %d items, want %d", len(received), total)
			}
			for i, s := range received {
				if want := fmt.Sprintf("m%d", i); s.Symbol != want {
					t.Fatalf("item %d = %s, want %s", i, s.Symbol, want)
				}
			}
			return
		default:
		}
	}
}
