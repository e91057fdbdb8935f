package tmdb

import "strings"

// ImageBaseURL prefixes poster and profile paths.
const ImageBaseURL = "https://image.tmdb.org/t/p/original"

// Genre is a TMDB genre entry.
type Genre struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Company is a production company.
type Company struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// CastMember is one entry of a credits cast list.
type CastMember struct {
	Name        string `json:"name"`
	Character   string `json:"character"`
	ProfilePath string `json:"profile_path"`
	Order       int    `json:"order"`
}

// CrewMember is one entry of a credits crew list.
type CrewMember struct {
	Name       string `json:"name"`
	Job        string `json:"job"`
	Department string `json:"department"`
}

// Credits is the payload appended by append_to_response=credits.
type Credits struct {
	Cast []CastMember `json:"cast"`
	Crew []CrewMember `json:"crew"`
}

// Movie holds movie details.
type Movie struct {
	ID                  int64     `json:"id"`
	Title               string    `json:"title"`
	OriginalTitle       string    `json:"original_title"`
	ReleaseDate         string    `json:"release_date"`
	Overview            string    `json:"overview"`
	Runtime             int       `json:"runtime"`
	VoteAverage         float64   `json:"vote_average"`
	PosterPath          string    `json:"poster_path"`
	Genres              []Genre   `json:"genres"`
	ProductionCompanies []Company `json:"production_companies"`
	Credits             Credits   `json:"credits"`
}

// Series holds TV show details.
type Series struct {
	ID           int64   `json:"id"`
	Name         string  `json:"name"`
	OriginalName string  `json:"original_name"`
	FirstAirDate string  `json:"first_air_date"`
	Overview     string  `json:"overview"`
	VoteAverage  float64 `json:"vote_average"`
	PosterPath   string  `json:"poster_path"`
	Genres       []Genre `json:"genres"`
	Credits      Credits `json:"credits"`
}

// Episode holds a single episode's details.
type Episode struct {
	ID            int64   `json:"id"`
	Name          string  `json:"name"`
	Overview      string  `json:"overview"`
	SeasonNumber  int     `json:"season_number"`
	EpisodeNumber int     `json:"episode_number"`
	AirDate       string  `json:"air_date"`
	VoteAverage   float64 `json:"vote_average"`
	StillPath     string  `json:"still_path"`
}

// SearchResult is a single match of a movie or tv search.
type SearchResult struct {
	ID           int64  `json:"id"`
	Title        string `json:"title"`
	Name         string `json:"name"`
	ReleaseDate  string `json:"release_date"`
	FirstAirDate string `json:"first_air_date"`
}

type searchResponse struct {
	Page         int            `json:"page"`
	Results      []SearchResult `json:"results"`
	TotalResults int            `json:"total_results"`
}

// ImageURL returns the full URL for an image path, or "" when path is empty.
func ImageURL(path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return ""
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return ImageBaseURL + path
}

// Year returns the leading year of a TMDB date ("2010-07-15"), or "".
func Year(date string) string {
	year, _, _ := strings.Cut(strings.TrimSpace(date), "-")
	if len(year) != 4 {
		return ""
	}
	return year
}
