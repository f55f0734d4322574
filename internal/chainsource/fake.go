package chainsource

import (
	"context"
	"fmt"
	"sync"

	"github.com/agentchain/replaycore/internal/events"
)

// FakeChainSource serves a fixed sequence of pages from memory, for
// backfill-service tests. It supports injecting a number of transient
// retryable failures per page and honors ctx cancellation.
type FakeChainSource struct {
	mu             sync.Mutex
	pages          []Page
	failBeforePage map[int]int // page index -> remaining injected failures
	fetches        int
}

// NewFakeChainSource returns a source that serves pages in order,
// ignoring the requested pageSize (tests construct pages already split
// to the size they want to exercise).
func NewFakeChainSource(pages []Page) *FakeChainSource {
	return &FakeChainSource{pages: pages, failBeforePage: map[int]int{}}
}

// FailNTimes injects n RetryableError failures the next time page
// pageIndex is fetched, before it succeeds.
func (f *FakeChainSource) FailNTimes(pageIndex, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failBeforePage[pageIndex] = n
}

func (f *FakeChainSource) FetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches
}

func (f *FakeChainSource) FetchPage(ctx context.Context, cursor *events.Cursor, pageSize int) (Page, error) {
	select {
	case <-ctx.Done():
		return Page{}, ctx.Err()
	default:
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++

	idx := pageIndexForCursor(f.pages, cursor)
	if idx >= len(f.pages) {
		return Page{Done: true}, nil
	}

	if remaining := f.failBeforePage[idx]; remaining > 0 {
		f.failBeforePage[idx] = remaining - 1
		return Page{}, &RetryableError{Err: fmt.Errorf("fake: injected transient failure for page %d", idx)}
	}

	return f.pages[idx], nil
}

// pageIndexForCursor finds the page whose predecessor's NextCursor
// matches cursor, so idempotent re-fetches of the same cursor return
// the same page.
func pageIndexForCursor(pages []Page, cursor *events.Cursor) int {
	if cursor == nil {
		return 0
	}
	for i := range pages {
		if i == 0 {
			continue
		}
		prev := pages[i-1].NextCursor
		if prev != nil && *prev == *cursor {
			return i
		}
	}
	// cursor matches the tail of the last known page: nothing further.
	if len(pages) > 0 {
		last := pages[len(pages)-1].NextCursor
		if last != nil && *last == *cursor {
			return len(pages)
		}
	}
	return 0
}
