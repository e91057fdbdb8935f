// Package nfo renders Kodi/Jellyfin sidecar files from TMDB metadata.
package nfo

import (
	"encoding/xml"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"medialink/internal/tmdb"
)

// MaxActors caps the cast written to a movie sidecar.
const MaxActors = 15

const header = `<?xml version="1.0" encoding="UTF-8" standalone="yes" ?>` + "\n"

type uniqueID struct {
	Type    string `xml:"type,attr"`
	Default bool   `xml:"default,attr"`
	Value   string `xml:",chardata"`
}

type actor struct {
	Name  string `xml:"name"`
	Role  string `xml:"role"`
	Thumb string `xml:"thumb,omitempty"`
}

type movie struct {
	XMLName       xml.Name `xml:"movie"`
	Title         string   `xml:"title"`
	OriginalTitle string   `xml:"originaltitle"`
	Year          string   `xml:"year,omitempty"`
	Premiered     string   `xml:"premiered,omitempty"`
	Rating        float64  `xml:"rating"`
	Plot          string   `xml:"plot"`
	Runtime       int      `xml:"runtime,omitempty"`
	Genres        []string `xml:"genre"`
	Studios       []string `xml:"studio"`
	TMDBID        string   `xml:"tmdbid"`
	UniqueID      uniqueID `xml:"uniqueid"`
	Directors     []string `xml:"director"`
	Writers       []string `xml:"writer"`
	Actors        []actor  `xml:"actor"`
	Thumb         string   `xml:"thumb,omitempty"`
}

type tvshow struct {
	XMLName       xml.Name `xml:"tvshow"`
	Title         string   `xml:"title"`
	OriginalTitle string   `xml:"originaltitle"`
	Year          string   `xml:"year,omitempty"`
	Premiered     string   `xml:"premiered,omitempty"`
	Rating        float64  `xml:"rating"`
	Plot          string   `xml:"plot"`
	Genres        []string `xml:"genre"`
	TMDBID        string   `xml:"tmdbid"`
	UniqueID      uniqueID `xml:"uniqueid"`
	Thumb         string   `xml:"thumb,omitempty"`
}

type episodeDetails struct {
	XMLName  xml.Name `xml:"episodedetails"`
	Title    string   `xml:"title"`
	Plot     string   `xml:"plot"`
	Season   int      `xml:"season"`
	Episode  int      `xml:"episode"`
	Aired    string   `xml:"aired,omitempty"`
	TMDBID   string   `xml:"tmdbid"`
	UniqueID uniqueID `xml:"uniqueid"`
	Thumb    string   `xml:"thumb,omitempty"`
}

// EncodeMovie renders a <movie> document.
func EncodeMovie(m *tmdb.Movie) ([]byte, error) {
	id := strconv.FormatInt(m.ID, 10)
	doc := movie{
		Title:         m.Title,
		OriginalTitle: m.OriginalTitle,
		Year:          tmdb.Year(m.ReleaseDate),
		Premiered:     strings.TrimSpace(m.ReleaseDate),
		Rating:        m.VoteAverage,
		Plot:          m.Overview,
		Runtime:       m.Runtime,
		Genres:        genreNames(m.Genres),
		TMDBID:        id,
		UniqueID:      tmdbID(id),
		Thumb:         tmdb.ImageURL(m.PosterPath),
	}
	for _, c := range m.ProductionCompanies {
		if name := strings.TrimSpace(c.Name); name != "" {
			doc.Studios = append(doc.Studios, name)
		}
	}
	for _, person := range m.Credits.Crew {
		switch person.Job {
		case "Director":
			doc.Directors = append(doc.Directors, person.Name)
		case "Writer", "Screenplay":
			doc.Writers = append(doc.Writers, person.Name)
		}
	}
	cast := m.Credits.Cast
	if len(cast) > MaxActors {
		cast = cast[:MaxActors]
	}
	for _, c := range cast {
		doc.Actors = append(doc.Actors, actor{Name: c.Name, Role: c.Character, Thumb: tmdb.ImageURL(c.ProfilePath)})
	}
	return encode(doc)
}

// EncodeSeries renders a <tvshow> document.
func EncodeSeries(s *tmdb.Series) ([]byte, error) {
	id := strconv.FormatInt(s.ID, 10)
	return encode(tvshow{
		Title:         s.Name,
		OriginalTitle: s.OriginalName,
		Year:          tmdb.Year(s.FirstAirDate),
		Premiered:     strings.TrimSpace(s.FirstAirDate),
		Rating:        s.VoteAverage,
		Plot:          s.Overview,
		Genres:        genreNames(s.Genres),
		TMDBID:        id,
		UniqueID:      tmdbID(id),
		Thumb:         tmdb.ImageURL(s.PosterPath),
	})
}

// EncodeEpisode renders an <episodedetails> document.
func EncodeEpisode(e *tmdb.Episode) ([]byte, error) {
	id := strconv.FormatInt(e.ID, 10)
	return encode(episodeDetails{
		Title:    e.Name,
		Plot:     e.Overview,
		Season:   e.SeasonNumber,
		Episode:  e.EpisodeNumber,
		Aired:    strings.TrimSpace(e.AirDate),
		TMDBID:   id,
		UniqueID: tmdbID(id),
		Thumb:    tmdb.ImageURL(e.StillPath),
	})
}

// WriteMovie writes a movie sidecar to path.
func WriteMovie(path string, m *tmdb.Movie) error {
	data, err := EncodeMovie(m)
	if err != nil {
		return err
	}
	return WriteFile(path, data)
}

// WriteSeries writes a tvshow sidecar to path.
func WriteSeries(path string, s *tmdb.Series) error {
	data, err := EncodeSeries(s)
	if err != nil {
		return err
	}
	return WriteFile(path, data)
}

// WriteEpisode writes an episode sidecar to path.
func WriteEpisode(path string, e *tmdb.Episode) error {
	data, err := EncodeEpisode(e)
	if err != nil {
		return err
	}
	return WriteFile(path, data)
}

// WriteFile replaces path atomically, creating its directory.
func WriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return nil
}

func encode(doc any) ([]byte, error) {
	b, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(header)+len(b)+1)
	out = append(out, header...)
	out = append(out, b...)
	return append(out, '\n'), nil
}

func genreNames(genres []tmdb.Genre) []string {
	var names []string
	for _, g := range genres {
		if name := strings.TrimSpace(g.Name); name != "" {
			names = append(names, name)
		}
	}
	return names
}

func tmdbID(id string) uniqueID {
	return uniqueID{Type: "tmdb", Default: true, Value: id}
}
