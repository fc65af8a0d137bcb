package experiment

import (
	"context"
	"sync"
	"testing"

	"myContentLab/domain"
)

func TestFlushMetrics_AppliesAndClears(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, &fakeStorefront{}, &fakeSuggestions{})
	ctx := context.Background()
	_, variants := seedExperiment(t, svc, store, domain.TypeABTest)

	for i := 0; i < 3; i++ {
		svc.buffer.RecordImpression(variants[0].ID)
	}
	svc.buffer.RecordImpression(variants[1].ID)
	svc.buffer.RecordClick(variants[0].ID)

	if err := svc.FlushMetrics(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}

	a, _ := store.FindVariantByID(ctx, variants[0].ID)
	b, _ := store.FindVariantByID(ctx, variants[1].ID)
	if a.Impressions != 3 || a.Clicks != 1 {
		t.Errorf("variant A counters = %d/%d, want 3/1", a.Impressions, a.Clicks)
	}
	if b.Impressions != 1 || b.Clicks != 0 {
		t.Errorf("variant B counters = %d/%d, want 1/0", b.Impressions, b.Clicks)
	}
	if svc.buffer.Pending() != 0 {
		t.Errorf("pending after flush = %d, want 0", svc.buffer.Pending())
	}

	// Nothing buffered: flush must not touch the database.
	calls := store.flushCalls
	if err := svc.FlushMetrics(ctx); err != nil {
		t.Fatalf("empty flush: %v", err)
	}
	if store.flushCalls != calls {
		t.Errorf("empty flush hit the database")
	}
}

func TestFlushMetrics_MergesBackOnFailure(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, &fakeStorefront{}, &fakeSuggestions{})
	ctx := context.Background()
	_, variants := seedExperiment(t, svc, store, domain.TypeABTest)

	store.failFlush = true
	svc.buffer.RecordImpression(variants[0].ID)
	svc.buffer.RecordImpression(variants[0].ID)

	if err := svc.FlushMetrics(ctx); err == nil {
		t.Fatal("flush succeeded against failing store")
	}
	if svc.buffer.Pending() != 2 {
		t.Fatalf("pending after failed flush = %d, want 2", svc.buffer.Pending())
	}

	// Events recorded after the failed flush survive alongside the
	// merged-back snapshot.
	store.failFlush = false
	svc.buffer.RecordImpression(variants[0].ID)
	if err := svc.FlushMetrics(ctx); err != nil {
		t.Fatalf("retry flush: %v", err)
	}

	a, _ := store.FindVariantByID(ctx, variants[0].ID)
	if a.Impressions != 3 {
		t.Fatalf("impressions after retry = %d, want 3", a.Impressions)
	}
}

func TestMetricsBuffer_ConcurrentRecording(t *testing.T) {
	buffer := NewMetricsBuffer()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				buffer.RecordImpression(1)
				buffer.RecordClick(2)
			}
		}()
	}
	wg.Wait()

	if got := buffer.Pending(); got != 2000 {
		t.Fatalf("pending = %d, want 2000", got)
	}

	impressions, clicks := buffer.drain()
	if impressions[1] != 1000 || clicks[2] != 1000 {
		t.Fatalf("drained %d impressions / %d clicks, want 1000/1000", impressions[1], clicks[2])
	}
}
