// Package watchlist unifies the Plex, Trakt and IMDB watchlists of a user into
// one deduplicated list annotated with what is already in the local library.
package watchlist

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"

	"github.com/sourcegraph/conc/pool"

	"plexfront/models"
	"plexfront/services/imdb"
	"plexfront/services/library"
	"plexfront/services/plex"
	"plexfront/services/trakt"
)

// ErrAllSourcesFailed is returned when every configured source failed.
var ErrAllSourcesFailed = errors.New("all watchlist sources failed")

// PlexWatchlist reads the Plex discover watchlist.
type PlexWatchlist interface {
	GetWatchlist(ctx context.Context, token, filter string) ([]plex.WatchlistItem, error)
}

// TraktWatchlist reads public Trakt watchlists.
type TraktWatchlist interface {
	GetPublicWatchlist(ctx context.Context, username string) ([]trakt.WatchlistItem, error)
}

// IMDBWatchlist reads public IMDB lists.
type IMDBWatchlist interface {
	GetPublicWatchlist(ctx context.Context, listID string) ([]imdb.Item, error)
}

// IDResolver looks up the external ids of a Plex discover item.
type IDResolver interface {
	GetItemDetails(ctx context.Context, token, ratingKey string) (map[string]string, error)
}

// Sources selects which watchlists to read for one user.
type Sources struct {
	PlexToken     string
	TraktUsername string
	IMDBListIDs   []string
}

// Fingerprint identifies the source configuration, so cached results built
// from a different configuration are not reused.
func (s Sources) Fingerprint() string {
	ids := append([]string(nil), s.IMDBListIDs...)
	sort.Strings(ids)
	return fmt.Sprintf("plex=%t;trakt=%s;imdb=%s",
		s.PlexToken != "", strings.ToLower(strings.TrimSpace(s.TraktUsername)), strings.Join(ids, ","))
}

// Result is the merged watchlist.
type Result struct {
	Items   []models.UnifiedWatchlistItem `json:"items"`
	Counts  models.WatchlistCounts        `json:"counts"`
	Partial bool                          `json:"partial"`
	Errors  map[models.Source]string      `json:"errors,omitempty"`
}

// Options configures a Unifier. Nil clients disable their source.
type Options struct {
	Plex         PlexWatchlist
	Trakt        TraktWatchlist
	IMDB         IMDBWatchlist
	Resolver     IDResolver
	RatingPolicy RatingPolicy
	// MaxConcurrency bounds parallel origin calls; defaults to 4.
	MaxConcurrency int
}

// Unifier fetches, merges and annotates watchlists.
type Unifier struct {
	plex     PlexWatchlist
	trakt    TraktWatchlist
	imdb     IMDBWatchlist
	resolver IDResolver
	policy   RatingPolicy
	workers  int
}

// NewUnifier creates a unifier.
func NewUnifier(opts Options) *Unifier {
	policy := opts.RatingPolicy
	if policy == "" {
		policy = RatingLocalFirst
	}
	workers := opts.MaxConcurrency
	if workers <= 0 {
		workers = 4
	}
	return &Unifier{
		plex:     opts.Plex,
		trakt:    opts.Trakt,
		imdb:     opts.IMDB,
		resolver: opts.Resolver,
		policy:   policy,
		workers:  workers,
	}
}

// Policy returns the rating policy used by Unify.
func (u *Unifier) Policy() RatingPolicy {
	return u.policy
}

// Unify fetches every configured source, merges the records and annotates the
// result against index.
func (u *Unifier) Unify(ctx context.Context, src Sources, index *library.Index) (Result, error) {
	res, err := u.Collect(ctx, src)
	if err != nil {
		return Result{}, err
	}
	res.Items = Annotate(res.Items, index, u.policy)
	res.Counts = models.CountWatchlist(res.Items)
	return res, nil
}

type fetchOutcome struct {
	source  models.Source
	order   int
	label   string
	records []Record
	err     error
}

// Collect fetches and merges without touching the library fields. A failing
// source is recorded in Result.Errors; if every configured source fails the
// joined errors are returned.
func (u *Unifier) Collect(ctx context.Context, src Sources) (Result, error) {
	var (
		mu       sync.Mutex
		outcomes []fetchOutcome
	)
	record := func(o fetchOutcome) {
		mu.Lock()
		outcomes = append(outcomes, o)
		mu.Unlock()
	}

	p := pool.New().WithMaxGoroutines(u.workers)
	configured := 0

	if u.plex != nil && strings.TrimSpace(src.PlexToken) != "" {
		configured++
		p.Go(func() {
			records, err := u.fetchPlex(ctx, src.PlexToken)
			record(fetchOutcome{source: models.SourcePlex, label: "plex", records: records, err: err})
		})
	}
	if u.trakt != nil && strings.TrimSpace(src.TraktUsername) != "" {
		configured++
		username := strings.TrimSpace(src.TraktUsername)
		p.Go(func() {
			items, err := u.trakt.GetPublicWatchlist(ctx, username)
			records := make([]Record, 0, len(items))
			for _, item := range items {
				records = append(records, FromTrakt(item))
			}
			record(fetchOutcome{source: models.SourceTrakt, label: "trakt " + username, records: records, err: err})
		})
	}
	if u.imdb != nil {
		for i, listID := range src.IMDBListIDs {
			listID = strings.TrimSpace(listID)
			if listID == "" {
				continue
			}
			configured++
			order := i
			p.Go(func() {
				items, err := u.imdb.GetPublicWatchlist(ctx, listID)
				records := make([]Record, 0, len(items))
				for _, item := range items {
					records = append(records, FromIMDB(item))
				}
				record(fetchOutcome{source: models.SourceIMDB, order: order, label: "imdb " + listID, records: records, err: err})
			})
		}
	}
	p.Wait()

	if configured == 0 {
		return Result{Items: []models.UnifiedWatchlistItem{}}, nil
	}

	sort.Slice(outcomes, func(i, j int) bool {
		if outcomes[i].source != outcomes[j].source {
			return outcomes[i].source.Rank() < outcomes[j].source.Rank()
		}
		return outcomes[i].order < outcomes[j].order
	})

	var (
		records []Record
		errs    []error
		failed  = make(map[models.Source][]string)
	)
	for _, o := range outcomes {
		if o.err != nil {
			log.Printf("[watchlist] %s failed: %v", o.label, o.err)
			errs = append(errs, fmt.Errorf("%s: %w", o.label, o.err))
			failed[o.source] = append(failed[o.source], o.err.Error())
			continue
		}
		records = append(records, o.records...)
	}

	if len(errs) == len(outcomes) {
		return Result{}, fmt.Errorf("%w: %w", ErrAllSourcesFailed, errors.Join(errs...))
	}

	res := Result{Items: Merge(records)}
	if len(failed) > 0 {
		res.Partial = true
		res.Errors = make(map[models.Source]string, len(failed))
		for s, msgs := range failed {
			res.Errors[s] = strings.Join(msgs, "; ")
		}
	}
	res.Counts = models.CountWatchlist(res.Items)
	return res, nil
}

// fetchPlex reads the Plex watchlist and fills in external ids for entries
// that arrived without any. Lookup failures leave the entry unchanged.
func (u *Unifier) fetchPlex(ctx context.Context, token string) ([]Record, error) {
	items, err := u.plex.GetWatchlist(ctx, token, "")
	if err != nil {
		return nil, err
	}
	records := make([]Record, len(items))
	for i, item := range items {
		records[i] = FromPlex(item)
	}
	if u.resolver == nil {
		return records, nil
	}

	p := pool.New().WithMaxGoroutines(u.workers)
	for i := range records {
		r := &records[i]
		if r.IDs["imdb"] != "" || r.IDs["tmdb"] != "" || r.RatingKey == "" {
			continue
		}
		p.Go(func() {
			ids, err := u.resolver.GetItemDetails(ctx, token, r.RatingKey)
			if err != nil {
				log.Printf("[watchlist] id lookup for %q failed: %v", r.Title, err)
				return
			}
			merged := make(map[string]string, len(r.IDs)+len(ids))
			for k, v := range ids {
				merged[k] = v
			}
			for k, v := range r.IDs {
				merged[k] = v
			}
			r.IDs = merged
		})
	}
	p.Wait()
	return records, nil
}
