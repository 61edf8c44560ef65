package watchlist

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"plexfront/internal/storage"
	"plexfront/models"
	"plexfront/services/diskcache"
	"plexfront/services/library"
)

const (
	cacheNamespace = "watchlist"
	cacheVersion   = 1

	DefaultFreshFor = 5 * time.Minute
	DefaultStaleFor = 24 * time.Hour
)

// ErrTokenRequired is returned when a request carries no Plex token.
var ErrTokenRequired = errors.New("plex token is required")

// LibraryIndexer returns the live library index of the user owning token.
type LibraryIndexer interface {
	BuildLibraryIndex(ctx context.Context, token string) (*library.Index, error)
}

// SettingsProvider returns the watchlist sources a user configured.
type SettingsProvider interface {
	Get(userID string) (models.UserSettings, error)
}

// Request identifies the user a watchlist is built for.
type Request struct {
	Token  string
	UserID string
	// Force bypasses the cache and refetches every source.
	Force bool
}

// Response is the merged watchlist returned to clients.
type Response struct {
	Items    []models.UnifiedWatchlistItem `json:"items"`
	Counts   models.WatchlistCounts        `json:"counts"`
	CachedAt int64                         `json:"cachedAt"`
	IsStale  bool                          `json:"isStale"`
	Partial  bool                          `json:"partial"`
	Errors   map[models.Source]string      `json:"errors,omitempty"`
}

// snapshot is what goes to disk: merged items without any library fields.
type snapshot struct {
	Fingerprint string                        `json:"fingerprint"`
	Items       []models.UnifiedWatchlistItem `json:"items"`
	Partial     bool                          `json:"partial"`
	Errors      map[models.Source]string      `json:"errors,omitempty"`
}

// ServiceOptions configures the cache windows of a Service.
type ServiceOptions struct {
	FreshFor       time.Duration
	StaleFor       time.Duration
	RefreshTimeout time.Duration
	Now            func() time.Time
}

// Service serves per-user unified watchlists with stale-while-revalidate caching.
type Service struct {
	unifier  *Unifier
	loader   *diskcache.Loader[snapshot]
	library  LibraryIndexer
	settings SettingsProvider
	now      func() time.Time
}

// NewService creates a watchlist service storing snapshots in store.
// library and settings may be nil.
func NewService(store *storage.Store, unifier *Unifier, lib LibraryIndexer, settings SettingsProvider, opts ServiceOptions) *Service {
	if opts.FreshFor <= 0 {
		opts.FreshFor = DefaultFreshFor
	}
	if opts.StaleFor <= 0 {
		opts.StaleFor = DefaultStaleFor
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	cache := diskcache.New[snapshot](store, diskcache.Options{
		Namespace: cacheNamespace,
		Version:   cacheVersion,
		Policy:    diskcache.Policy{FreshFor: opts.FreshFor, StaleFor: opts.StaleFor},
		Now:       opts.Now,
	})
	return &Service{
		unifier:  unifier,
		loader:   diskcache.NewLoader("watchlist", cache, opts.RefreshTimeout),
		library:  lib,
		settings: settings,
		now:      opts.Now,
	}
}

// Get returns the unified watchlist for the requesting user. Cached merges are
// re-annotated against the live library on every call.
func (s *Service) Get(ctx context.Context, req Request) (Response, error) {
	token := strings.TrimSpace(req.Token)
	if token == "" {
		return Response{}, ErrTokenRequired
	}

	src := s.sources(token, req.UserID)
	key := diskcache.UserKey(cacheNamespace, token)
	fetch := s.fetcher(src)

	var res diskcache.Result[snapshot]
	if !req.Force {
		var err error
		res, err = s.loader.Load(ctx, key, fetch)
		if err != nil {
			return Response{}, err
		}
	}

	// a snapshot built for other sources is as good as a miss
	if req.Force || res.Payload.Fingerprint != src.Fingerprint() {
		payload, err := s.loader.Refresh(ctx, key, fetch)
		if err != nil {
			return Response{}, err
		}
		res = diskcache.Result[snapshot]{Payload: payload, CachedAt: s.now(), Fetched: true}
	} else if res.Payload.Partial && !res.Fetched && !res.IsStale {
		s.loader.RefreshAsync(key, fetch)
	}

	items := Annotate(res.Payload.Items, s.libraryIndex(ctx, token), s.unifier.Policy())
	return Response{
		Items:    items,
		Counts:   models.CountWatchlist(items),
		CachedAt: res.CachedAtSeconds(),
		IsStale:  res.IsStale,
		Partial:  res.Payload.Partial,
		Errors:   res.Payload.Errors,
	}, nil
}

// Invalidate drops the cached watchlist of the user owning token.
func (s *Service) Invalidate(token string) {
	s.loader.Cache().Invalidate(diskcache.UserKey(cacheNamespace, token))
}

// Clear removes every cached watchlist and returns how many were dropped.
func (s *Service) Clear() (int, error) {
	return s.loader.Cache().Clear()
}

// Wait blocks until background refreshes finish.
func (s *Service) Wait() {
	s.loader.Wait()
}

func (s *Service) fetcher(src Sources) diskcache.Fetcher[snapshot] {
	return func(ctx context.Context) (snapshot, error) {
		res, err := s.unifier.Collect(ctx, src)
		if err != nil {
			return snapshot{}, err
		}
		for i := range res.Items {
			res.Items[i].StripVolatile()
		}
		return snapshot{
			Fingerprint: src.Fingerprint(),
			Items:       res.Items,
			Partial:     res.Partial,
			Errors:      res.Errors,
		}, nil
	}
}

func (s *Service) sources(token, userID string) Sources {
	src := Sources{PlexToken: token}
	if s.settings == nil || strings.TrimSpace(userID) == "" {
		return src
	}
	settings, err := s.settings.Get(userID)
	if err != nil {
		log.Printf("[watchlist] failed to load settings for user %s: %v", userID, err)
		return src
	}
	src.TraktUsername = settings.TraktUsername
	src.IMDBListIDs = settings.IMDBWatchlistIDs
	return src
}

// libraryIndex never fails the request; without an index nothing is local.
func (s *Service) libraryIndex(ctx context.Context, token string) *library.Index {
	if s.library == nil {
		return library.Empty()
	}
	index, err := s.library.BuildLibraryIndex(ctx, token)
	if err != nil {
		log.Printf("[watchlist] library index unavailable: %v", err)
		return library.Empty()
	}
	return index
}
