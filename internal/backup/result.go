package backup

import "sort"

// Episode is one watched episode in the canonical schema.
type Episode struct {
	ID      int64  `json:"id"`
	Title   string `json:"title"`
	Season  int    `json:"season"`
	Number  int    `json:"number"`
	AirDate string `json:"airDate"`
	Watched string `json:"watched"`
	Rating  string `json:"rating"`
}

// Show is the canonical record produced for one tracked show,
// independent of which API variant it came from.
type Show struct {
	ID              int64     `json:"id"`
	Title           string    `json:"title"`
	TitleOriginal   string    `json:"titleOriginal"`
	RuTitle         string    `json:"ruTitle"`
	Year            int       `json:"year"`
	Status          string    `json:"status"`
	ShowStatus      string    `json:"showStatus"`
	Rating          string    `json:"rating"`
	MyRating        string    `json:"myRating"`
	IMDBID          string    `json:"imdbId"`
	IMDBRating      string    `json:"imdbRating"`
	KinopoiskID     string    `json:"kinopoiskId"`
	KinopoiskRating string    `json:"kinopoiskRating"`
	Country         string    `json:"country"`
	Network         string    `json:"network"`
	Genres          string    `json:"genres"`
	TotalEpisodes   int       `json:"totalEpisodes"`
	WatchedEpisodes int       `json:"watchedEpisodes"`
	TotalSeasons    int       `json:"totalSeasons"`
	Runtime         string    `json:"runtime"`
	Image           string    `json:"image"`
	Description     string    `json:"description"`
	Started         string    `json:"started"`
	Ended           string    `json:"ended"`
	Episodes        []Episode `json:"episodes"`
}

// Meta describes a completed backup run.
type Meta struct {
	Username       string   `json:"username"`
	BackupDate     string   `json:"backup_date"`
	TotalShows     int      `json:"total_shows"`
	APIVersion     string   `json:"api_version"`
	ProcessingTime *float64 `json:"processing_time_seconds,omitempty"`
}

// Result is the full output of a backup run.
type Result struct {
	Meta  Meta   `json:"metadata"`
	Shows []Show `json:"shows"`
}

// unwatchedSortKey is lexicographically above any real date, so shows
// with no watched episodes land at the end of the collection.
const unwatchedSortKey = "9999-99-99"

// FirstWatched returns the show's sort key: the watched date of its
// first episode. Episodes are already sorted with empty dates first.
func (s *Show) FirstWatched() string {
	if len(s.Episodes) == 0 {
		return unwatchedSortKey
	}
	return s.Episodes[0].Watched
}

// SortShows orders the final collection by each show's earliest watched
// date; ties keep their listing order.
func SortShows(shows []Show) {
	sort.SliceStable(shows, func(i, j int) bool {
		return shows[i].FirstWatched() < shows[j].FirstWatched()
	})
}
