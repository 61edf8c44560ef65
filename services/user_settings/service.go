package user_settings

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"

	"plexfront/internal/storage"
	"plexfront/models"
	"plexfront/services/diskcache"
	"plexfront/services/imdb"
	"plexfront/services/trakt"
)

const settingsDir = "settings"

var (
	ErrStorageRequired = errors.New("settings storage not provided")
	ErrUserIDRequired  = errors.New("user id is required")
)

var safeUserID = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// TraktChecker verifies Trakt usernames.
type TraktChecker interface {
	GetUserProfile(ctx context.Context, username string) (*trakt.UserProfile, error)
}

// IMDBChecker verifies IMDB list ids.
type IMDBChecker interface {
	GetPublicWatchlist(ctx context.Context, listID string) ([]imdb.Item, error)
}

// Options configures the validation cache.
type Options struct {
	Trakt          TraktChecker
	IMDB           IMDBChecker
	ValidationTTL  diskcache.Policy
	RefreshTimeout time.Duration
	Now            func() time.Time
}

// Service manages persistence and retrieval of per-user settings. Each user
// has a file at settings/user-<id>.json.
type Service struct {
	mu       sync.RWMutex
	store    *storage.Store
	settings map[string]models.UserSettings
	now      func() time.Time

	trakt      TraktChecker
	imdb       IMDBChecker
	validation *diskcache.Loader[models.SourceValidation]
}

// NewService creates a user settings service on store.
func NewService(store *storage.Store, opts Options) (*Service, error) {
	if store == nil {
		return nil, ErrStorageRequired
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	policy := opts.ValidationTTL
	if policy.FreshFor <= 0 {
		policy = diskcache.Policy{FreshFor: time.Hour, StaleFor: 24 * time.Hour}
	}
	cache := diskcache.New[models.SourceValidation](store, diskcache.Options{
		Namespace: settingsDir,
		Version:   models.UserSettingsVersion,
		Policy:    policy,
		Now:       opts.Now,
	})
	return &Service{
		store:      store,
		settings:   make(map[string]models.UserSettings),
		now:        opts.Now,
		trakt:      opts.Trakt,
		imdb:       opts.IMDB,
		validation: diskcache.NewLoader("settings", cache, opts.RefreshTimeout),
	}, nil
}

func normalizeUserID(userID string) (string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", ErrUserIDRequired
	}
	return userID, nil
}

// fileKey maps a user id onto a safe file name component.
func fileKey(userID string) string {
	if safeUserID.MatchString(userID) && !strings.HasPrefix(userID, ".") {
		return userID
	}
	return diskcache.HashKey(userID)
}

func settingsPath(userID string) string {
	return path.Join(settingsDir, "user-"+fileKey(userID)+".json")
}

func validationKey(userID string) string {
	return "validation-" + fileKey(userID)
}

// Get returns the user's settings, or defaults when none are stored.
func (s *Service) Get(userID string) (models.UserSettings, error) {
	settings, ok, err := s.lookup(userID)
	if err != nil {
		return models.UserSettings{}, err
	}
	if !ok {
		return models.DefaultUserSettings(), nil
	}
	return settings, nil
}

// HasOverrides returns true if the user has custom settings stored.
func (s *Service) HasOverrides(userID string) bool {
	_, ok, err := s.lookup(userID)
	return err == nil && ok
}

func (s *Service) lookup(userID string) (models.UserSettings, bool, error) {
	userID, err := normalizeUserID(userID)
	if err != nil {
		return models.UserSettings{}, false, err
	}

	s.mu.RLock()
	settings, ok := s.settings[userID]
	s.mu.RUnlock()
	if ok {
		return cloneSettings(settings), true, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if settings, ok := s.settings[userID]; ok {
		return cloneSettings(settings), true, nil
	}

	var loaded models.UserSettings
	if err := s.store.ReadJSON(settingsPath(userID), &loaded); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return models.UserSettings{}, false, nil
		}
		return models.UserSettings{}, false, fmt.Errorf("load user settings: %w", err)
	}
	loaded.Normalize()
	s.settings[userID] = loaded
	return cloneSettings(loaded), true, nil
}

// Update saves the user's settings. Settings with no sources configured remove
// the user's file instead. The cached validation result is dropped.
func (s *Service) Update(userID string, settings models.UserSettings) (models.UserSettings, error) {
	userID, err := normalizeUserID(userID)
	if err != nil {
		return models.UserSettings{}, err
	}
	settings.Normalize()
	settings.UpdatedAt = s.now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.validation.Cache().Invalidate(validationKey(userID))

	if settings.IsEmpty() {
		delete(s.settings, userID)
		if err := s.removeFile(userID); err != nil {
			return models.UserSettings{}, err
		}
		return settings, nil
	}

	if err := s.store.WriteJSON(settingsPath(userID), settings); err != nil {
		return models.UserSettings{}, fmt.Errorf("save user settings: %w", err)
	}
	s.settings[userID] = settings
	return cloneSettings(settings), nil
}

// Delete removes a user's settings and cached validation.
func (s *Service) Delete(userID string) error {
	userID, err := normalizeUserID(userID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.settings, userID)
	s.validation.Cache().Invalidate(validationKey(userID))
	return s.removeFile(userID)
}

func (s *Service) removeFile(userID string) error {
	if err := s.store.Remove(settingsPath(userID)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete user settings: %w", err)
	}
	return nil
}

// Validate checks the user's Trakt username and IMDB lists against the
// origins. Results are cached; an origin failure other than "not found" is
// returned and not cached.
func (s *Service) Validate(ctx context.Context, userID string) (models.SourceValidation, error) {
	settings, err := s.Get(userID)
	if err != nil {
		return models.SourceValidation{}, err
	}
	res, err := s.validation.Load(ctx, validationKey(strings.TrimSpace(userID)), func(ctx context.Context) (models.SourceValidation, error) {
		return s.check(ctx, settings)
	})
	if err != nil {
		return models.SourceValidation{}, err
	}
	return res.Payload, nil
}

func (s *Service) check(ctx context.Context, settings models.UserSettings) (models.SourceValidation, error) {
	result := models.SourceValidation{
		TraktUsername: settings.TraktUsername,
		IMDBLists:     make(map[string]bool, len(settings.IMDBWatchlistIDs)),
		CheckedAt:     s.now().UTC(),
	}
	var mu sync.Mutex

	p := pool.New().WithErrors().WithMaxGoroutines(4)
	if settings.TraktUsername != "" {
		p.Go(func() error {
			if s.trakt == nil {
				return errors.New("trakt client not configured")
			}
			_, err := s.trakt.GetUserProfile(ctx, settings.TraktUsername)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				result.TraktValid = true
			case errors.Is(err, trakt.ErrUserNotFound):
				result.TraktError = err.Error()
			default:
				return fmt.Errorf("check trakt user: %w", err)
			}
			return nil
		})
	}
	for _, listID := range settings.IMDBWatchlistIDs {
		p.Go(func() error {
			valid := false
			if s.imdb != nil {
				_, err := s.imdb.GetPublicWatchlist(ctx, listID)
				switch {
				case err == nil:
					valid = true
				case errors.Is(err, imdb.ErrListNotFound), errors.Is(err, imdb.ErrInvalidListID):
				default:
					return fmt.Errorf("check imdb list %s: %w", listID, err)
				}
			}
			mu.Lock()
			result.IMDBLists[listID] = valid
			mu.Unlock()
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return models.SourceValidation{}, err
	}
	return result, nil
}

func cloneSettings(s models.UserSettings) models.UserSettings {
	s.IMDBWatchlistIDs = append([]string{}, s.IMDBWatchlistIDs...)
	return s
}
