package backup

import (
	"fmt"
	"maps"
	"math"
	"slices"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/olegsh/myshows-backup/internal/myshows"
)

// Normalize maps one (reference, detail, episodes) triple from either
// API variant into the canonical schema. It never fails: absent fields
// become zero values, absent ratings become "NA", malformed dates pass
// through untouched.
func Normalize(variant myshows.Variant, ref myshows.ShowRef, detail map[string]any, episodes *myshows.RawEpisodes) Show {
	return Show{
		ID:              ref.ID,
		Title:           str(detail, "title"),
		TitleOriginal:   str(detail, "titleOriginal"),
		RuTitle:         str(detail, "ruTitle", "title"),
		Year:            num(detail, "year"),
		Status:          str(ref.Raw, "list_status", "watchStatus"),
		ShowStatus:      str(detail, "status"),
		Rating:          ratingOrNA(detail["rating"]),
		MyRating:        ratingOrNA(ref.Raw["rating"]),
		IMDBID:          stringify(detail["imdbId"]),
		IMDBRating:      stringify(detail["imdbRating"]),
		KinopoiskID:     stringify(detail["kinopoiskId"]),
		KinopoiskRating: stringify(detail["kinopoiskRating"]),
		Country:         str(detail, "country"),
		Network:         str(detail, "network"),
		Genres:          NormalizeGenres(detail["genres"]),
		TotalEpisodes:   num(detail, "totalEpisodes"),
		WatchedEpisodes: num(ref.Raw, "watchedEpisodes"),
		TotalSeasons:    totalSeasons(detail),
		Runtime:         stringify(detail["runtime"]),
		Image:           str(detail, "image"),
		Description:     str(detail, "description"),
		Started:         str(detail, "started"),
		Ended:           str(detail, "ended"),
		Episodes:        normalizeEpisodes(variant, detail, episodes),
	}
}

// NormalizeGenres flattens the upstream genre field, which may be a
// list, a keyed object, or a bare scalar, into one comma-joined string.
func NormalizeGenres(genres any) string {
	switch g := genres.(type) {
	case nil:
		return ""
	case []any:
		parts := make([]string, 0, len(g))
		for _, v := range g {
			parts = append(parts, stringify(v))
		}
		return strings.Join(parts, ", ")
	case map[string]any:
		// sorted keys keep the joined string reproducible
		parts := make([]string, 0, len(g))
		for _, k := range slices.Sorted(maps.Keys(g)) {
			parts = append(parts, stringify(g[k]))
		}
		return strings.Join(parts, ", ")
	case string:
		return g
	default:
		return stringify(g)
	}
}

// NormalizeWatchDate renders a watch date as YYYY-MM-DD. The v2 API
// sends ISO-8601 timestamps, v1 sends DD.MM.YYYY; anything else is
// passed through untouched so a malformed date never loses data.
func NormalizeWatchDate(raw string) string {
	if raw == "" {
		return ""
	}
	if strings.Contains(raw, "T") {
		for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05"} {
			if t, err := time.Parse(layout, raw); err == nil {
				return t.Format("2006-01-02")
			}
		}
		return raw
	}
	if t, err := time.Parse("02.01.2006", raw); err == nil {
		return t.Format("2006-01-02")
	}
	return raw
}

// normalizeEpisodes flattens either upstream container shape into the
// canonical sequence, sorted ascending by watched date with undated
// entries first.
func normalizeEpisodes(variant myshows.Variant, detail map[string]any, raw *myshows.RawEpisodes) []Episode {
	entries := flattenEpisodes(raw)
	episodes := make([]Episode, 0, len(entries))
	for _, entry := range entries {
		ep := Episode{
			ID:      episodeID(entry),
			AirDate: str(entry, "airDate"),
			Watched: NormalizeWatchDate(str(entry, "watchDate", "watchedAt")),
			Rating:  ratingOrNA(entry["rating"]),
		}
		if variant == myshows.VariantLegacy {
			// v1 watch records carry no numbering; it lives in the
			// detail payload's episode map, keyed by episode id.
			side := legacyEpisodeLookup(detail, ep.ID)
			ep.Season = num(side, "seasonNumber")
			ep.Number = num(side, "episodeNumber")
			ep.Title = str(side, "title")
		} else {
			ep.Season = num(entry, "seasonNumber", "season")
			ep.Number = num(entry, "episodeNumber", "episode")
			ep.Title = str(entry, "title")
		}
		episodes = append(episodes, ep)
	}

	sort.SliceStable(episodes, func(i, j int) bool {
		return episodes[i].Watched < episodes[j].Watched
	})
	return episodes
}

// flattenEpisodes turns either container shape into one list. The v1
// keyed object is ordered by key so runs are reproducible.
func flattenEpisodes(raw *myshows.RawEpisodes) []map[string]any {
	if raw == nil {
		return nil
	}
	if raw.Keyed != nil {
		keys := slices.Sorted(maps.Keys(raw.Keyed))
		out := make([]map[string]any, 0, len(keys))
		for _, k := range keys {
			out = append(out, raw.Keyed[k])
		}
		return out
	}
	return raw.Ordered
}

func legacyEpisodeLookup(detail map[string]any, episodeID int64) map[string]any {
	all, ok := detail["episodes"].(map[string]any)
	if !ok {
		return nil
	}
	side, _ := all[strconv.FormatInt(episodeID, 10)].(map[string]any)
	return side
}

func episodeID(entry map[string]any) int64 {
	if v, ok := entry["id"]; ok {
		return toInt64(v)
	}
	return toInt64(entry["episodeId"])
}

// str returns the first of keys present in m, rendered as a string.
func str(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			return stringify(v)
		}
	}
	return ""
}

// num returns the first of keys present in m as an int, 0 otherwise.
func num(m map[string]any, keys ...string) int {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			return int(toInt64(v))
		}
	}
	return 0
}

// ratingOrNA renders a rating value, falling back to the "NA" sentinel
// when the upstream omitted it.
func ratingOrNA(v any) string {
	if v == nil {
		return "NA"
	}
	return stringify(v)
}

func totalSeasons(detail map[string]any) int {
	if seasons, ok := detail["seasons"].([]any); ok {
		return len(seasons)
	}
	return num(detail, "totalSeasons")
}

// stringify renders any decoded JSON scalar as a string; nil becomes
// the empty string.
func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		// json numbers decode as float64; render integral values
		// without a trailing .0
		if t == math.Trunc(t) && math.Abs(t) < 1e15 {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'g', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case float64:
		return int64(n)
	case int:
		return int64(n)
	case int64:
		return n
	case string:
		i, _ := strconv.ParseInt(n, 10, 64)
		return i
	}
	return 0
}
