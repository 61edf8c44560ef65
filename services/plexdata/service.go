// Package plexdata serves Plex server data through per-user disk caches with
// stale-while-revalidate semantics.
package plexdata

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"plexfront/internal/storage"
	"plexfront/services/diskcache"
	"plexfront/services/library"
	"plexfront/services/plex"
)

const (
	cacheNamespace = "plex"
	cacheVersion   = 1

	defaultHomeLimit = 20
	libraryPageSize  = 200
)

// ErrTokenRequired is returned when a call carries no Plex token.
var ErrTokenRequired = errors.New("plex token is required")

// Server is the subset of the Plex client used here.
type Server interface {
	GetLibraries(ctx context.Context, token string) ([]plex.Directory, error)
	GetLibraryItems(ctx context.Context, token, sectionKey string, opts plex.ItemsOptions) ([]plex.Metadata, int, error)
	GetAllLibraryItems(ctx context.Context, token, sectionKey string, pageSize int) ([]plex.Metadata, error)
	GetMetadata(ctx context.Context, token, ratingKey string) (*plex.Metadata, error)
	GetOnDeck(ctx context.Context, token string, limit int) ([]plex.Metadata, error)
	GetRecentlyAdded(ctx context.Context, token, sectionKey string, limit int) ([]plex.Metadata, error)
}

// Cached wraps a payload with its cache state.
type Cached[T any] struct {
	Data     T     `json:"data"`
	CachedAt int64 `json:"cachedAt"`
	IsStale  bool  `json:"isStale"`
}

func wrap[T any](res diskcache.Result[T]) Cached[T] {
	return Cached[T]{Data: res.Payload, CachedAt: res.CachedAtSeconds(), IsStale: res.IsStale}
}

// Home is the landing page feed.
type Home struct {
	OnDeck        []plex.Metadata `json:"onDeck"`
	RecentlyAdded []plex.Metadata `json:"recentlyAdded"`
}

// ItemsPage is one page of a library section.
type ItemsPage struct {
	Items     []plex.Metadata `json:"items"`
	TotalSize int             `json:"totalSize"`
}

// Options configures the cache windows.
type Options struct {
	Home           diskcache.Policy
	Library        diskcache.Policy
	HomeLimit      int
	RefreshTimeout time.Duration
	Now            func() time.Time
}

// DefaultOptions returns the standard windows: the home feed is fresh for 30s
// and usable for 5m, library data fresh for 5m and usable for 1h.
func DefaultOptions() Options {
	return Options{
		Home:      diskcache.Policy{FreshFor: 30 * time.Second, StaleFor: 5 * time.Minute},
		Library:   diskcache.Policy{FreshFor: 5 * time.Minute, StaleFor: time.Hour},
		HomeLimit: defaultHomeLimit,
	}
}

// Service caches Plex server reads per user.
type Service struct {
	server    Server
	homeLimit int

	home      *diskcache.Loader[Home]
	libraries *diskcache.Loader[[]plex.Directory]
	items     *diskcache.Loader[ItemsPage]
	metadata  *diskcache.Loader[plex.Metadata]

	scans singleflight.Group
}

func newLoader[T any](name string, store *storage.Store, policy diskcache.Policy, opts Options) *diskcache.Loader[T] {
	cache := diskcache.New[T](store, diskcache.Options{
		Namespace: cacheNamespace,
		Version:   cacheVersion,
		Policy:    policy,
		Now:       opts.Now,
	})
	return diskcache.NewLoader(name, cache, opts.RefreshTimeout)
}

// NewService creates a service over server, storing entries under plex/ in store.
func NewService(store *storage.Store, server Server, opts Options) *Service {
	defaults := DefaultOptions()
	if opts.Home.FreshFor <= 0 && opts.Home.StaleFor <= 0 {
		opts.Home = defaults.Home
	}
	if opts.Library.FreshFor <= 0 && opts.Library.StaleFor <= 0 {
		opts.Library = defaults.Library
	}
	if opts.HomeLimit <= 0 {
		opts.HomeLimit = defaults.HomeLimit
	}
	return &Service{
		server:    server,
		homeLimit: opts.HomeLimit,
		home:      newLoader[Home]("plex-home", store, opts.Home, opts),
		libraries: newLoader[[]plex.Directory]("plex-libraries", store, opts.Library, opts),
		items:     newLoader[ItemsPage]("plex-items", store, opts.Library, opts),
		metadata:  newLoader[plex.Metadata]("plex-metadata", store, opts.Library, opts),
	}
}

func checkToken(token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrTokenRequired
	}
	return token, nil
}

// Home returns on-deck and recently added items.
func (s *Service) Home(ctx context.Context, token string) (Cached[Home], error) {
	token, err := checkToken(token)
	if err != nil {
		return Cached[Home]{}, err
	}
	res, err := s.home.Load(ctx, diskcache.UserKey("home", token), func(ctx context.Context) (Home, error) {
		deck, err := s.server.GetOnDeck(ctx, token, s.homeLimit)
		if err != nil {
			return Home{}, fmt.Errorf("on deck: %w", err)
		}
		recent, err := s.server.GetRecentlyAdded(ctx, token, "", s.homeLimit)
		if err != nil {
			return Home{}, fmt.Errorf("recently added: %w", err)
		}
		return Home{OnDeck: deck, RecentlyAdded: recent}, nil
	})
	if err != nil {
		return Cached[Home]{}, err
	}
	return wrap(res), nil
}

// Libraries returns the library sections of the server.
func (s *Service) Libraries(ctx context.Context, token string) (Cached[[]plex.Directory], error) {
	token, err := checkToken(token)
	if err != nil {
		return Cached[[]plex.Directory]{}, err
	}
	res, err := s.libraries.Load(ctx, diskcache.UserKey("libraries", token), func(ctx context.Context) ([]plex.Directory, error) {
		return s.server.GetLibraries(ctx, token)
	})
	if err != nil {
		return Cached[[]plex.Directory]{}, err
	}
	return wrap(res), nil
}

// LibraryItems returns one page of a section.
func (s *Service) LibraryItems(ctx context.Context, token, sectionKey string, opts plex.ItemsOptions) (Cached[ItemsPage], error) {
	token, err := checkToken(token)
	if err != nil {
		return Cached[ItemsPage]{}, err
	}
	prefix := fmt.Sprintf("items-%s-%d-%d-%s", sectionKey, opts.Offset, opts.Limit, opts.Sort)
	res, err := s.items.Load(ctx, diskcache.UserKey(prefix, token), func(ctx context.Context) (ItemsPage, error) {
		items, total, err := s.server.GetLibraryItems(ctx, token, sectionKey, opts)
		if err != nil {
			return ItemsPage{}, err
		}
		return ItemsPage{Items: items, TotalSize: total}, nil
	})
	if err != nil {
		return Cached[ItemsPage]{}, err
	}
	return wrap(res), nil
}

// Metadata returns the details of one item.
func (s *Service) Metadata(ctx context.Context, token, ratingKey string) (Cached[plex.Metadata], error) {
	token, err := checkToken(token)
	if err != nil {
		return Cached[plex.Metadata]{}, err
	}
	res, err := s.metadata.Load(ctx, diskcache.UserKey("metadata-"+ratingKey, token), func(ctx context.Context) (plex.Metadata, error) {
		meta, err := s.server.GetMetadata(ctx, token, ratingKey)
		if err != nil {
			return plex.Metadata{}, err
		}
		return *meta, nil
	})
	if err != nil {
		return Cached[plex.Metadata]{}, err
	}
	return wrap(res), nil
}

// BuildLibraryIndex scans every movie and show section and indexes the result.
// The scan is never cached: a title added to the library must show up on the
// next call. Concurrent scans for the same token share one pass over the server.
func (s *Service) BuildLibraryIndex(ctx context.Context, token string) (*library.Index, error) {
	token, err := checkToken(token)
	if err != nil {
		return nil, err
	}
	v, err, _ := s.scans.Do(diskcache.UserKey("catalog", token), func() (any, error) {
		// the shared scan must not die with whichever caller started it
		return s.scan(context.WithoutCancel(ctx), token)
	})
	if err != nil {
		return nil, err
	}
	return library.NewIndex(v.([]plex.Metadata)), nil
}

func (s *Service) scan(ctx context.Context, token string) ([]plex.Metadata, error) {
	sections, err := s.server.GetLibraries(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("list libraries: %w", err)
	}
	var all []plex.Metadata
	for _, section := range sections {
		if section.Type != "movie" && section.Type != "show" {
			continue
		}
		items, err := s.server.GetAllLibraryItems(ctx, token, section.Key, libraryPageSize)
		if err != nil {
			return nil, fmt.Errorf("scan library %s: %w", section.Title, err)
		}
		all = append(all, items...)
	}
	return all, nil
}

// Invalidate drops every cached read of the user owning token that does not
// depend on extra parameters.
func (s *Service) Invalidate(token string) {
	s.home.Cache().Invalidate(diskcache.UserKey("home", token))
	s.libraries.Cache().Invalidate(diskcache.UserKey("libraries", token))
}

// Clear removes every cached Plex entry.
func (s *Service) Clear() (int, error) {
	return s.home.Cache().Clear()
}

// Wait blocks until background refreshes finish.
func (s *Service) Wait() {
	s.home.Wait()
	s.libraries.Wait()
	s.items.Wait()
	s.metadata.Wait()
}
