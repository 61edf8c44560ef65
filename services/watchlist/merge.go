package watchlist

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"plexfront/models"
	"plexfront/services/imdb"
	"plexfront/services/plex"
	"plexfront/services/trakt"
	"plexfront/utils"
)

// Record is a single watchlist entry as reported by one source.
type Record struct {
	Source models.Source
	// IDs holds external ids keyed by kind: imdb, tmdb, plex (and tvdb, trakt
	// when known). Only imdb, tmdb and plex link records together.
	IDs       map[string]string
	Type      string
	Title     string
	Year      int
	Thumb     string
	Rating    float64
	AddedAt   time.Time
	RatingKey string
}

// FromPlex converts a Plex discover watchlist entry.
func FromPlex(item plex.WatchlistItem) Record {
	r := Record{
		Source:    models.SourcePlex,
		IDs:       item.ExternalIDs(),
		Type:      plex.NormalizeMediaType(item.Type),
		Title:     item.Title,
		Year:      item.Year,
		Thumb:     item.Thumb,
		Rating:    item.AudienceRating,
		RatingKey: item.RatingKey,
	}
	if item.AddedAt > 0 {
		r.AddedAt = time.Unix(item.AddedAt, 0).UTC()
	}
	return r
}

// FromTrakt converts a Trakt watchlist entry.
func FromTrakt(item trakt.WatchlistItem) Record {
	return Record{
		Source:  models.SourceTrakt,
		IDs:     trakt.IDsToMap(item.IDs()),
		Type:    plex.NormalizeMediaType(item.Type),
		Title:   item.Title(),
		Year:    item.Year(),
		Rating:  item.Rating(),
		AddedAt: item.ListedAt.UTC(),
	}
}

// FromIMDB converts a row of an IMDB list export.
func FromIMDB(item imdb.Item) Record {
	return Record{
		Source:  models.SourceIMDB,
		IDs:     map[string]string{"imdb": item.IMDBID},
		Type:    item.Type,
		Title:   item.Title,
		Year:    item.Year,
		Rating:  item.Rating,
		AddedAt: item.AddedAt,
	}
}

// linkKeys returns the durable identity keys of r. TMDB ids are only unique
// per media type, so they are scoped by it.
func (r Record) linkKeys() []string {
	var keys []string
	if id := strings.ToLower(strings.TrimSpace(r.IDs["imdb"])); id != "" {
		keys = append(keys, "imdb:"+id)
	}
	if id := strings.TrimSpace(r.IDs["tmdb"]); id != "" && id != "0" {
		keys = append(keys, "tmdb:"+r.Type+":"+id)
	}
	if id := strings.ToLower(strings.TrimSpace(r.IDs["plex"])); id != "" {
		keys = append(keys, "plex:"+id)
	}
	return keys
}

func (r Record) titleKey() string {
	if utils.NormalizeTitle(r.Title) == "" {
		return ""
	}
	return r.Type + ":" + utils.TitleYearKey(r.Title, r.Year)
}

// disjointSet is a union-find over record positions.
type disjointSet []int

func newDisjointSet(n int) disjointSet {
	d := make(disjointSet, n)
	for i := range d {
		d[i] = i
	}
	return d
}

func (d disjointSet) find(i int) int {
	for d[i] != i {
		d[i] = d[d[i]]
		i = d[i]
	}
	return i
}

// union keeps the lower position as root so group order follows input order.
func (d disjointSet) union(a, b int) {
	ra, rb := d.find(a), d.find(b)
	switch {
	case ra == rb:
	case ra < rb:
		d[rb] = ra
	default:
		d[ra] = rb
	}
}

// Merge links records that describe the same title and folds each group into
// one item. Records sharing any durable id (IMDB, TMDB, Plex GUID) are linked;
// records with none of them are linked by type, normalized title and year.
// Merge depends only on its input and never touches the live library fields.
func Merge(records []Record) []models.UnifiedWatchlistItem {
	if len(records) == 0 {
		return []models.UnifiedWatchlistItem{}
	}

	recs := make([]Record, len(records))
	copy(recs, records)
	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].Source.Rank() < recs[j].Source.Rank()
	})

	set := newDisjointSet(len(recs))
	owners := make(map[string]int)
	titleOwners := make(map[string]int)
	for i, r := range recs {
		keys := r.linkKeys()
		for _, k := range keys {
			if j, ok := owners[k]; ok {
				set.union(i, j)
			} else {
				owners[k] = i
			}
		}
		if len(keys) > 0 {
			if tk := r.titleKey(); tk != "" {
				if _, ok := titleOwners[tk]; !ok {
					titleOwners[tk] = i
				}
			}
		}
	}

	// Records without durable ids attach to an identified record of the same
	// title first, then to each other. They never bridge two identified groups.
	looseOwners := make(map[string]int)
	for i, r := range recs {
		if len(r.linkKeys()) > 0 {
			continue
		}
		tk := r.titleKey()
		if tk == "" {
			continue
		}
		if j, ok := titleOwners[tk]; ok {
			set.union(i, j)
			continue
		}
		if j, ok := looseOwners[tk]; ok {
			set.union(i, j)
		} else {
			looseOwners[tk] = i
		}
	}

	groups := make(map[int][]Record)
	var roots []int
	for i, r := range recs {
		root := set.find(i)
		if _, ok := groups[root]; !ok {
			roots = append(roots, root)
		}
		groups[root] = append(groups[root], r)
	}

	items := make([]models.UnifiedWatchlistItem, 0, len(roots))
	seen := make(map[string]bool, len(roots))
	for _, root := range roots {
		item, ok := fold(groups[root])
		if !ok {
			continue
		}
		if seen[item.ID] {
			item.ID += ":" + item.Type
		}
		seen[item.ID] = true
		items = append(items, item)
	}

	SortItems(items)
	return items
}

// fold merges one group. Records arrive ordered plex, trakt, imdb, so the
// first non-empty value of a field is the one with the highest precedence.
func fold(group []Record) (models.UnifiedWatchlistItem, bool) {
	var item models.UnifiedWatchlistItem
	present := make(map[models.Source]bool)
	for _, r := range group {
		if item.Type == "" {
			item.Type = r.Type
		}
		if item.Title == "" {
			item.Title = strings.TrimSpace(r.Title)
		}
		if item.Year == 0 {
			item.Year = r.Year
		}
		if item.ThumbnailURL == "" {
			item.ThumbnailURL = r.Thumb
		}
		if item.IMDBID == "" {
			item.IMDBID = strings.TrimSpace(r.IDs["imdb"])
		}
		if item.TMDBID == "" {
			if id := strings.TrimSpace(r.IDs["tmdb"]); id != "0" {
				item.TMDBID = id
			}
		}
		if item.PlexGUID == "" {
			item.PlexGUID = strings.TrimSpace(r.IDs["plex"])
		}
		if item.SourceRating == nil && r.Rating > 0 {
			item.SourceRating = models.Float64Ptr(r.Rating)
		}
		item.AddedAt.Set(r.Source, r.AddedAt)
		if !present[r.Source] {
			present[r.Source] = true
			item.Sources = append(item.Sources, r.Source)
		}
	}
	if item.Title == "" && item.IMDBID == "" && item.TMDBID == "" && item.PlexGUID == "" {
		return item, false
	}
	models.SortSources(item.Sources)
	item.ID = itemID(item)
	return item, true
}

// itemID applies the id precedence imdb > tmdb > plex > title.
func itemID(item models.UnifiedWatchlistItem) string {
	switch {
	case item.IMDBID != "":
		return "imdb:" + item.IMDBID
	case item.TMDBID != "":
		return "tmdb:" + item.TMDBID
	case item.PlexGUID != "":
		return "plex:" + item.PlexGUID
	default:
		year := ""
		if item.Year > 0 {
			year = fmt.Sprint(item.Year)
		}
		return "title:" + item.Type + ":" + utils.NormalizeTitle(item.Title) + ":" + year
	}
}

// SortItems orders items by the earliest time any source added them, newest
// first. Items without a time go last; ties break on title then id.
func SortItems(items []models.UnifiedWatchlistItem) {
	sort.SliceStable(items, func(i, j int) bool {
		ti, oki := items[i].AddedAt.Earliest()
		tj, okj := items[j].AddedAt.Earliest()
		if oki != okj {
			return oki
		}
		if oki && !ti.Equal(tj) {
			return ti.After(tj)
		}
		if a, b := strings.ToLower(items[i].Title), strings.ToLower(items[j].Title); a != b {
			return a < b
		}
		return items[i].ID < items[j].ID
	})
}
