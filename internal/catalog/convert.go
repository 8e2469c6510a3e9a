package catalog

import "strconv"

type rawPage struct {
	Page       int        `json:"page"`
	TotalPages int        `json:"total_pages"`
	Results    []rawMovie `json:"results"`
}

type rawMovie struct {
	ID            int64   `json:"id"`
	Title         string  `json:"title"`
	OriginalTitle string  `json:"original_title"`
	ReleaseDate   string  `json:"release_date"`
	Overview      string  `json:"overview"`
	PosterPath    string  `json:"poster_path"`
	Runtime       int     `json:"runtime"`
	Popularity    float64 `json:"popularity"`
	Genres        []struct {
		Name string `json:"name"`
	} `json:"genres"`
	Credits *struct {
		Crew []struct {
			Name string `json:"name"`
			Job  string `json:"job"`
		} `json:"crew"`
	} `json:"credits"`
}

func (c *Client) convertPage(raw rawPage) Page {
	p := Page{Page: raw.Page, TotalPages: raw.TotalPages, Results: make([]Movie, 0, len(raw.Results))}
	for _, m := range raw.Results {
		p.Results = append(p.Results, c.convert(m))
	}
	return p
}

func (c *Client) convert(raw rawMovie) Movie {
	m := Movie{
		ID:            raw.ID,
		Title:         raw.Title,
		OriginalTitle: raw.OriginalTitle,
		ReleaseDate:   raw.ReleaseDate,
		Year:          yearOf(raw.ReleaseDate),
		Overview:      raw.Overview,
		Runtime:       raw.Runtime,
		Popularity:    raw.Popularity,
		Genres:        []string{},
	}
	if raw.PosterPath != "" {
		m.PosterURL = c.imageBase + raw.PosterPath
	}
	for _, g := range raw.Genres {
		m.Genres = append(m.Genres, g.Name)
	}
	if raw.Credits != nil {
		for _, crew := range raw.Credits.Crew {
			if crew.Job == "Director" {
				m.Director = crew.Name
				break
			}
		}
	}
	return m
}

// yearOf extracts the year from a YYYY-MM-DD release date.
func yearOf(date string) int {
	if len(date) < 4 {
		return 0
	}
	y, err := strconv.Atoi(date[:4])
	if err != nil {
		return 0
	}
	return y
}
