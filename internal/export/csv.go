package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/olegsh/myshows-backup/internal/backup"
	"github.com/olegsh/myshows-backup/internal/errutil"
)

// fullHeader is the fixed column order of the full projection.
var fullHeader = []string{
	"username", "show_id", "title", "title_original", "title_ru", "year",
	"my_status", "show_status", "site_rating", "my_rating", "imdb_id",
	"imdb_rating", "kinopoisk_id", "kinopoisk_rating", "country", "network",
	"genres", "total_episodes", "watched_episodes", "total_seasons",
	"runtime", "started", "ended", "description",
	"first_episode_watched", "last_episode_watched", "days_watching",
}

// liteHeader is the fixed column order of the lite projection.
var liteHeader = []string{"title_original", "title_ru", "year", "my_rating", "status"}

// maxDescriptionLen caps description cells; longer ones are truncated
// with an ellipsis marker.
const maxDescriptionLen = 200

// WriteCSV writes the full one-row-per-show projection.
func WriteCSV(w io.Writer, shows []backup.Show, username string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(fullHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i := range shows {
		if err := cw.Write(fullRow(&shows[i], username)); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func fullRow(s *backup.Show, username string) []string {
	first, last, days := watchSpan(s)
	return []string{
		username,
		strconv.FormatInt(s.ID, 10),
		s.Title,
		s.TitleOriginal,
		s.RuTitle,
		strconv.Itoa(s.Year),
		s.Status,
		s.ShowStatus,
		s.Rating,
		s.MyRating,
		s.IMDBID,
		s.IMDBRating,
		s.KinopoiskID,
		s.KinopoiskRating,
		s.Country,
		s.Network,
		s.Genres,
		strconv.Itoa(s.TotalEpisodes),
		strconv.Itoa(s.WatchedEpisodes),
		strconv.Itoa(s.TotalSeasons),
		s.Runtime,
		s.Started,
		s.Ended,
		truncateDescription(s.Description),
		first,
		last,
		strconv.Itoa(days),
	}
}

// watchSpan derives the earliest and latest watched dates and the days
// between them, skipping episodes with no watch date.
func watchSpan(s *backup.Show) (first, last string, days int) {
	for _, e := range s.Episodes {
		if e.Watched == "" {
			continue
		}
		if first == "" || e.Watched < first {
			first = e.Watched
		}
		if e.Watched > last {
			last = e.Watched
		}
	}
	if first == "" || last == "" {
		return first, last, 0
	}
	ft, errFirst := time.Parse("2006-01-02", first)
	lt, errLast := time.Parse("2006-01-02", last)
	if errFirst != nil || errLast != nil {
		return first, last, 0
	}
	return first, last, int(lt.Sub(ft).Hours() / 24)
}

func truncateDescription(desc string) string {
	if utf8.RuneCountInString(desc) <= maxDescriptionLen {
		return desc
	}
	return string([]rune(desc)[:maxDescriptionLen]) + "..."
}

// WriteLiteCSV writes the minimal projection. Missing original and
// localized titles fall back to the primary title.
func WriteLiteCSV(w io.Writer, shows []backup.Show) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(liteHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i := range shows {
		s := &shows[i]
		titleOriginal := s.TitleOriginal
		if titleOriginal == "" {
			titleOriginal = s.Title
		}
		ruTitle := s.RuTitle
		if ruTitle == "" {
			ruTitle = s.Title
		}
		row := []string{titleOriginal, ruTitle, strconv.Itoa(s.Year), s.MyRating, s.Status}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// CSVPaths derives the full and lite CSV paths from the JSON output
// path so all three exports land next to each other.
func CSVPaths(output string) (full, lite string) {
	full = output
	switch {
	case strings.HasSuffix(output, ".json"):
		full = strings.TrimSuffix(output, ".json") + ".csv"
	case !strings.HasSuffix(output, ".csv"):
		full = output + ".csv"
	}
	return full, strings.TrimSuffix(full, ".csv") + "_lite.csv"
}

// SaveCSV writes the full projection to path.
func SaveCSV(path string, shows []backup.Show, username string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer errutil.RunAndSetError(f.Close, &err, "close csv file")

	if err := WriteCSV(f, shows, username); err != nil {
		return err
	}
	slog.Info("CSV export written", "path", path)
	return nil
}

// SaveLiteCSV writes the lite projection to path.
func SaveLiteCSV(path string, shows []backup.Show) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer errutil.RunAndSetError(f.Close, &err, "close csv file")

	if err := WriteLiteCSV(f, shows); err != nil {
		return err
	}
	slog.Info("lite CSV export written", "path", path)
	return nil
}
