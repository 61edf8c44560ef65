package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"strings"
	"time"

	"plexfront/config"
	"plexfront/internal/storage"
	"plexfront/services/diskcache"
	"plexfront/services/imagecache"
	"plexfront/services/imdb"
	"plexfront/services/logos"
	"plexfront/services/plex"
	"plexfront/services/plexdata"
	"plexfront/services/scheduler"
	"plexfront/services/tmdb"
	"plexfront/services/trakt"
	"plexfront/services/user_settings"
	"plexfront/services/watchlist"
)

const (
	clientIDFile = "plex/client-id"
	imagesDir    = "images"
)

// app holds every service built from one configuration.
type app struct {
	cfg   *config.Config
	store *storage.Store

	plex  *plex.Client
	tmdb  *tmdb.Client
	trakt *trakt.Client
	imdb  *imdb.Client

	images    *imagecache.Cache
	imageDisk *imagecache.FSStore
	logos     *logos.Resolver
	plexData  *plexdata.Service
	settings  *user_settings.Service
	watchlist *watchlist.Service
	scheduler *scheduler.Service
}

func newApp(cfg *config.Config) (*app, error) {
	store, err := storage.NewOS(cfg.DataDir, storage.WithCrossProcessLock(cfg.Cache.CrossProcessLock))
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, store: store}

	clientID, err := a.plexClientID()
	if err != nil {
		return nil, err
	}
	a.plex = plex.NewClient(cfg.Plex.ServerURL, clientID, cfg.Plex.Timeout)
	a.tmdb = tmdb.NewClient(cfg.TMDB.APIKey, cfg.TMDB.Timeout, cfg.TMDB.RequestsPerSecond)
	a.trakt = trakt.NewClient(cfg.Trakt.ClientID, cfg.Trakt.Timeout)
	a.imdb = imdb.NewClient(cfg.IMDB.Timeout)

	dir := strings.TrimSpace(cfg.Images.Dir)
	if dir == "" {
		dir = imagesDir
	}
	a.imageDisk = imagecache.NewFSStoreFromStorage(store, dir)
	a.images = imagecache.New(imagecache.Options{
		MaxMemoryBytes: cfg.Images.MaxMemoryBytes,
		MemoryTTL:      cfg.Images.MemoryTTL,
		DiskTTL:        cfg.Images.DiskTTL,
		FetchTimeout:   cfg.Cache.RefreshTimeout,
		Disk:           a.imageDisk,
	})

	logoCache := logos.New(store, a.tmdb, logos.Options{
		PositiveTTL: cfg.Logos.PositiveTTL,
		NegativeTTL: cfg.Logos.NegativeTTL,
	})
	a.logos = logos.NewResolver(logoCache, a.tmdb)

	a.plexData = plexdata.NewService(store, a.plex, plexdata.Options{
		Home:           policy(cfg.Cache.HomeFresh, cfg.Cache.HomeStale),
		Library:        policy(cfg.Cache.LibraryFresh, cfg.Cache.LibraryStale),
		RefreshTimeout: cfg.Cache.RefreshTimeout,
	})

	settingsOpts := user_settings.Options{
		IMDB:           a.imdb,
		ValidationTTL:  policy(cfg.Settings.ValidationFresh, cfg.Settings.ValidationStale),
		RefreshTimeout: cfg.Cache.RefreshTimeout,
	}
	if a.trakt.HasCredentials() {
		settingsOpts.Trakt = a.trakt
	}
	a.settings, err = user_settings.NewService(store, settingsOpts)
	if err != nil {
		return nil, err
	}

	ratingPolicy, err := watchlist.ParseRatingPolicy(cfg.Watchlist.RatingPolicy)
	if err != nil {
		return nil, err
	}
	unifierOpts := watchlist.Options{
		Plex:           a.plex,
		IMDB:           a.imdb,
		Resolver:       a.plex,
		RatingPolicy:   ratingPolicy,
		MaxConcurrency: cfg.Watchlist.MaxConcurrency,
	}
	if a.trakt.HasCredentials() {
		unifierOpts.Trakt = a.trakt
	} else {
		log.Printf("[plexfront] trakt client id not configured, trakt watchlists disabled")
	}
	a.watchlist = watchlist.NewService(store, watchlist.NewUnifier(unifierOpts), a.plexData, a.settings, watchlist.ServiceOptions{
		FreshFor:       cfg.Watchlist.FreshFor,
		StaleFor:       cfg.Watchlist.StaleFor,
		RefreshTimeout: cfg.Cache.RefreshTimeout,
	})

	a.scheduler = scheduler.NewService(cfg.Scheduler.CheckInterval,
		scheduler.LogoSweepTask(logoCache, cfg.Scheduler.LogoSweep),
		scheduler.ImagePruneTask(a.images, cfg.Scheduler.ImagePrune),
		scheduler.TempCleanupTask(store, cfg.Scheduler.TempMaxAge, cfg.Scheduler.TempCleanup),
	)
	return a, nil
}

// plexClientID returns the persisted client identifier, creating it once so
// the server sees the same device across restarts.
func (a *app) plexClientID() (string, error) {
	if id := strings.TrimSpace(a.cfg.Plex.ClientID); id != "" {
		return id, nil
	}
	data, err := a.store.ReadFile(clientIDFile)
	if err == nil {
		if id := strings.TrimSpace(string(data)); id != "" {
			return id, nil
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("read plex client id: %w", err)
	}
	id := plex.GenerateClientID()
	if err := a.store.WriteFileAtomic(clientIDFile, []byte(id+"\n")); err != nil {
		return "", fmt.Errorf("save plex client id: %w", err)
	}
	return id, nil
}

// shutdown drains background work. Errors are logged; shutdown continues.
func (a *app) shutdown(ctx context.Context) {
	if err := a.scheduler.Stop(ctx); err != nil {
		log.Printf("[plexfront] scheduler stop: %v", err)
	}
	a.watchlist.Wait()
	a.plexData.Wait()
	a.images.Flush()
}

func policy(fresh, stale time.Duration) diskcache.Policy {
	return diskcache.Policy{FreshFor: fresh, StaleFor: stale}
}
