package reportid

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type stubLister struct {
	ids []string
	err error
}

func (s stubLister) ListReportIDs(context.Context) ([]string, error) {
	return s.ids, s.err
}

func TestAllocator_Next(t *testing.T) {
	tests := []struct {
		name string
		ids  []string
		want string
	}{
		{"empty store starts at two", nil, "2"},
		{"only non-numeric ids", []string{"RPT-1700000000000", "abc"}, "2"},
		{"max plus one", []string{"2", "3", "7", "5"}, "8"},
		{"non-numeric ignored", []string{"4", "RPT-1700000000000", "x9"}, "5"},
		{"unsorted with whitespace", []string{" 12", "3"}, "13"},
		{"single id", []string{"1"}, "2"},
		{"max int64 has no successor", []string{"9223372036854775807", "41"}, "42"},
		{"only max int64", []string{"9223372036854775807"}, "2"},
		{"beyond int64", []string{"99999999999999999999", "6"}, "7"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewAllocator(stubLister{ids: tt.ids}).Next(context.Background())
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAllocator_FallbackOnReadFailure(t *testing.T) {
	fixed := time.UnixMilli(1718000000123)
	a := NewAllocator(stubLister{err: errors.New("store unavailable")}).WithClock(func() time.Time { return fixed })

	got := a.Next(context.Background())
	assert.Equal(t, "RPT-1718000000123", got)
	assert.Regexp(t, regexp.MustCompile(`^RPT-\d+$`), got)
	assert.True(t, IsFallback(got))
}

func TestNextFrom_CountsSkipped(t *testing.T) {
	next, skipped := NextFrom([]string{"9223372036854775807", "RPT-1718000000123", "8"})
	assert.Equal(t, "9", next)
	assert.Equal(t, 2, skipped)
}

func TestIsFallback(t *testing.T) {
	assert.True(t, IsFallback(Fallback(time.Now())))
	assert.False(t, IsFallback("42"))
	assert.False(t, IsFallback("RPT-"))
	assert.False(t, IsFallback("RPT-abc"))
}

// blockingLister holds every caller until all of them have read the listing,
// reproducing two submitters racing the same read.
type blockingLister struct {
	ids     []string
	arrived sync.WaitGroup
}

func (b *blockingLister) ListReportIDs(context.Context) ([]string, error) {
	b.arrived.Done()
	b.arrived.Wait()
	return b.ids, nil
}

func TestAllocator_ConcurrentCallersCollide(t *testing.T) {
	const callers = 2
	lister := &blockingLister{ids: []string{"2", "3"}}
	lister.arrived.Add(callers)
	a := NewAllocator(lister)

	results := make([]string, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = a.Next(context.Background())
		}(i)
	}
	wg.Wait()

	// Known weakness of max+1: both callers get the same id.
	assert.Equal(t, []string{"4", "4"}, results)
}
