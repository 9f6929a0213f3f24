package pagination

import (
	"context"
	"fmt"
	"iter"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for pagination.
var (
	spotifyPagesFetchedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "spotify_pagination_pages_total",
		Help: "Total pages fetched by listing",
	}, []string{"listing"})

	spotifyPaginationDiscrepanciesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "spotify_pagination_discrepancies_total",
		Help: "Drained listings whose item count differs from the reported total",
	}, []string{"listing"})
)

// Retrier runs an operation with retries. *client.Retrier satisfies it.
type Retrier interface {
	Do(ctx context.Context, op func(ctx context.Context) error) error
}

// Cursor addresses one page. Offset-based listings use Offset and Limit;
// cursor-based listings use Token.
type Cursor struct {
	Token  string
	Offset int
	Limit  int
}

// Page is one fetched page.
type Page[T any] struct {
	Items []T

	// Next is nil on the last page.
	Next *Cursor

	// Total is the server-reported item count. Negative means unknown.
	Total int
}

// FetchFunc fetches the page at cursor with a single attempt.
type FetchFunc[T any] func(ctx context.Context, cursor Cursor) (Page[T], error)

// CountMismatch records a drained listing whose size differs from the total
// the server reported.
type CountMismatch struct {
	Listing  string `json:"listing"`
	Reported int    `json:"reported"`
	Received int    `json:"received"`
}

// String implements fmt.Stringer.
func (m CountMismatch) String() string {
	return fmt.Sprintf("%s: reported %d items, received %d", m.Listing, m.Reported, m.Received)
}

// Paginator lazily walks a paginated listing. It is not safe for concurrent use.
type Paginator[T any] struct {
	fetch    FetchFunc[T]
	retrier  Retrier
	pageSize int
	listing  string
	logger   zerolog.Logger

	start       Cursor
	started     bool
	err         error
	pages       int
	received    int
	reported    int
	discrepancy *CountMismatch
}

// New creates a paginator requesting pageSize items per page.
func New[T any](fetch FetchFunc[T], retrier Retrier, pageSize int) *Paginator[T] {
	return &Paginator[T]{
		fetch:    fetch,
		retrier:  retrier,
		pageSize: pageSize,
		start:    Cursor{Limit: pageSize},
		listing:  "listing",
		logger:   log.With().Str("component", "paginator").Logger(),
		reported: -1,
	}
}

// WithListing names the listing for logs and metrics.
func (p *Paginator[T]) WithListing(name string) *Paginator[T] {
	p.listing = name
	return p
}

// WithStart resumes the listing at cursor. Items before cursor.Offset count
// as received when checking the reported total.
func (p *Paginator[T]) WithStart(cursor Cursor) *Paginator[T] {
	if cursor.Limit <= 0 {
		cursor.Limit = p.pageSize
	}
	p.start = cursor
	p.received = cursor.Offset
	return p
}

// WithLogger sets the logger.
func (p *Paginator[T]) WithLogger(logger zerolog.Logger) *Paginator[T] {
	p.logger = logger
	return p
}

// All returns a single-use sequence over every item of the listing. Pages are
// fetched on demand; breaking out early leaves the remaining pages unfetched.
// A second call yields nothing. Check Err after the loop.
func (p *Paginator[T]) All(ctx context.Context) iter.Seq[T] {
	return func(yield func(T) bool) {
		if p.started {
			return
		}
		p.started = true

		cursor := p.start
		for {
			if err := ctx.Err(); err != nil {
				p.err = err
				return
			}

			var page Page[T]
			err := p.retrier.Do(ctx, func(ctx context.Context) error {
				var err error
				page, err = p.fetch(ctx, cursor)
				return err
			})
			if err != nil {
				p.err = fmt.Errorf("fetch %s page at offset %d: %w", p.listing, cursor.Offset, err)
				p.logger.Warn().
					Err(err).
					Str("listing", p.listing).
					Int("offset", cursor.Offset).
					Int("received", p.received).
					Msg("Pagination stopped")
				return
			}

			p.pages++
			spotifyPagesFetchedTotal.WithLabelValues(p.listing).Inc()
			if page.Total >= 0 {
				p.reported = page.Total
			}

			for _, item := range page.Items {
				p.received++
				if !yield(item) {
					return
				}
			}

			if page.Next == nil || (p.pageSize > 0 && len(page.Items) < p.pageSize) {
				p.complete()
				return
			}
			cursor = *page.Next
		}
	}
}

// complete runs once the listing is fully drained.
func (p *Paginator[T]) complete() {
	p.logger.Debug().
		Str("listing", p.listing).
		Int("pages", p.pages).
		Int("items", p.received).
		Msg("Listing drained")

	if p.reported < 0 || p.reported == p.received {
		return
	}

	p.discrepancy = &CountMismatch{Listing: p.listing, Reported: p.reported, Received: p.received}
	spotifyPaginationDiscrepanciesTotal.WithLabelValues(p.listing).Inc()
	p.logger.Warn().
		Str("listing", p.listing).
		Int("reported", p.reported).
		Int("received", p.received).
		Msg("Listing total differs from items received")
}

// Err returns the error that ended iteration early, if any.
func (p *Paginator[T]) Err() error {
	return p.err
}

// Discrepancy returns the count mismatch of a fully drained listing, or nil.
func (p *Paginator[T]) Discrepancy() *CountMismatch {
	return p.discrepancy
}

// Pages returns the number of pages fetched so far.
func (p *Paginator[T]) Pages() int {
	return p.pages
}

// Drain collects every item. On error the items received so far are returned
// with it.
func Drain[T any](ctx context.Context, p *Paginator[T]) ([]T, error) {
	var items []T
	for item := range p.All(ctx) {
		items = append(items, item)
	}
	return items, p.Err()
}
