// Package reportid hands out the human-readable sequential report identifiers.
//
// The scheme is list-then-max+1 and is not safe against concurrent submitters:
// two callers reading the same listing compute the same id. The repository's
// unique key turns that race into a write error instead of an overwrite.
package reportid

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"hazard-reporter/internal/logger"

	"github.com/sirupsen/logrus"
)

const (
	// FirstID is where the sequence starts on an empty store
	FirstID = 2

	// FallbackPrefix marks ids synthesised when the store could not be read
	FallbackPrefix = "RPT-"
)

// IDLister lists the identifiers of every stored report
type IDLister interface {
	ListReportIDs(ctx context.Context) ([]string, error)
}

// Allocator derives the next report id from the store
type Allocator struct {
	lister IDLister
	now    func() time.Time
}

// NewAllocator creates an allocator reading ids from lister
func NewAllocator(lister IDLister) *Allocator {
	return &Allocator{lister: lister, now: time.Now}
}

// WithClock replaces the clock used for fallback ids
func (a *Allocator) WithClock(now func() time.Time) *Allocator {
	a.now = now
	return a
}

// Next returns max(numeric ids)+1, or FirstID when there are none. Ids using
// another scheme are skipped. If the listing fails a timestamp id is returned
// instead, so allocation never blocks a submission.
func (a *Allocator) Next(ctx context.Context) string {
	ids, err := a.lister.ListReportIDs(ctx)
	if err != nil {
		fallback := Fallback(a.now())
		logger.WithError(err).WithField("report_id", fallback).Warn("Could not list report ids, using fallback id")
		return fallback
	}

	next, skipped := NextFrom(ids)
	logger.WithFields(logrus.Fields{
		"existing": len(ids),
		"skipped":  skipped,
		"next_id":  next,
	}).Debug("Allocated report id")
	return next
}

// NextFrom computes the next id from an id listing. skipped counts the ids that
// were ignored: non-numeric ones and those with no int64 successor.
func NextFrom(ids []string) (next string, skipped int) {
	var (
		highest int64
		found   bool
	)
	for _, id := range ids {
		n, err := strconv.ParseInt(strings.TrimSpace(id), 10, 64)
		if err != nil || n == math.MaxInt64 {
			skipped++
			continue
		}
		if !found || n > highest {
			highest = n
			found = true
		}
	}
	if !found {
		return strconv.Itoa(FirstID), skipped
	}
	return strconv.FormatInt(highest+1, 10), skipped
}

// Fallback builds the synthetic id used when the store cannot be read
func Fallback(t time.Time) string {
	return fmt.Sprintf("%s%d", FallbackPrefix, t.UnixMilli())
}

// IsFallback reports whether id was synthesised by Fallback
func IsFallback(id string) bool {
	rest, ok := strings.CutPrefix(id, FallbackPrefix)
	if !ok || rest == "" {
		return false
	}
	_, err := strconv.ParseInt(rest, 10, 64)
	return err == nil
}
