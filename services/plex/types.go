package plex

// MediaContainer is the root of every Plex JSON response.
type MediaContainer struct {
	Size      int         `json:"size"`
	TotalSize int         `json:"totalSize,omitempty"`
	Offset    int         `json:"offset,omitempty"`
	Directory []Directory `json:"Directory,omitempty"`
	Metadata  []Metadata  `json:"Metadata,omitempty"`
}

type apiResponse struct {
	MediaContainer MediaContainer `json:"MediaContainer"`
}

// Guid is an external identifier such as "imdb://tt1160419".
type Guid struct {
	ID string `json:"id"`
}

// Directory is a library section.
type Directory struct {
	Key       string `json:"key"`
	Type      string `json:"type"`
	Title     string `json:"title"`
	Thumb     string `json:"thumb,omitempty"`
	Art       string `json:"art,omitempty"`
	UpdatedAt int64  `json:"updatedAt,omitempty"`
}

// Metadata is a movie, show, season or episode on the media server.
type Metadata struct {
	RatingKey            string  `json:"ratingKey"`
	Key                  string  `json:"key"`
	GUID                 string  `json:"guid,omitempty"`
	Guids                []Guid  `json:"Guid,omitempty"`
	Type                 string  `json:"type"`
	Title                string  `json:"title"`
	GrandparentTitle     string  `json:"grandparentTitle,omitempty"`
	GrandparentRatingKey string  `json:"grandparentRatingKey,omitempty"`
	ParentIndex          int     `json:"parentIndex,omitempty"`
	Index                int     `json:"index,omitempty"`
	Summary              string  `json:"summary,omitempty"`
	Year                 int     `json:"year,omitempty"`
	Thumb                string  `json:"thumb,omitempty"`
	Art                  string  `json:"art,omitempty"`
	GrandparentThumb     string  `json:"grandparentThumb,omitempty"`
	Rating               float64 `json:"rating,omitempty"`
	AudienceRating       float64 `json:"audienceRating,omitempty"`
	UserRating           float64 `json:"userRating,omitempty"`
	ViewCount            int     `json:"viewCount,omitempty"`
	ViewOffset           int     `json:"viewOffset,omitempty"`
	LeafCount            int     `json:"leafCount,omitempty"`
	ViewedLeafCount      int     `json:"viewedLeafCount,omitempty"`
	Duration             int     `json:"duration,omitempty"`
	AddedAt              int64   `json:"addedAt,omitempty"`
	LastViewedAt         int64   `json:"lastViewedAt,omitempty"`
	LibrarySectionID     int     `json:"librarySectionID,omitempty"`
}

// ExternalIDs merges the ids found in the primary GUID and the Guid list.
func (m Metadata) ExternalIDs() map[string]string {
	return collectIDs(m.GUID, m.Guids)
}

// WatchlistItem is an entry of the Plex discover watchlist.
type WatchlistItem struct {
	RatingKey      string  `json:"ratingKey"`
	Key            string  `json:"key"`
	GUID           string  `json:"guid"`
	Guids          []Guid  `json:"Guid,omitempty"`
	Type           string  `json:"type"` // "movie" or "show"
	Title          string  `json:"title"`
	Year           int     `json:"year"`
	Thumb          string  `json:"thumb"`
	Art            string  `json:"art"`
	AudienceRating float64 `json:"audienceRating"`
	AddedAt        int64   `json:"addedAt"`
}

// ExternalIDs merges the ids found in the primary GUID and the Guid list.
func (w WatchlistItem) ExternalIDs() map[string]string {
	return collectIDs(w.GUID, w.Guids)
}

func collectIDs(primary string, guids []Guid) map[string]string {
	ids := ParseGUID(primary)
	for _, g := range guids {
		for k, v := range ParseGUID(g.ID) {
			if _, ok := ids[k]; !ok {
				ids[k] = v
			}
		}
	}
	return ids
}

type watchlistPage struct {
	MediaContainer struct {
		Size      int             `json:"size"`
		TotalSize int             `json:"totalSize"`
		Offset    int             `json:"offset"`
		Metadata  []WatchlistItem `json:"Metadata"`
	} `json:"MediaContainer"`
}
