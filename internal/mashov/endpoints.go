package mashov

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// endpoints is computed once from the base URL and never mutated.
type endpoints struct {
	base *url.URL
}

func newEndpoints(baseURL string) (endpoints, error) {
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return endpoints{}, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return endpoints{}, fmt.Errorf("base url %q must be absolute", baseURL)
	}
	return endpoints{base: base}, nil
}

func (e endpoints) resolve(path string, query url.Values) string {
	ref := &url.URL{Path: path}
	if len(query) > 0 {
		ref.RawQuery = query.Encode()
	}
	return e.base.ResolveReference(ref).String()
}

// origin returns scheme://host of the API, used for browser-like headers.
func (e endpoints) origin() string {
	return e.base.Scheme + "://" + e.base.Host
}

func (e endpoints) login() string {
	return e.resolve("login", nil)
}

func (e endpoints) holidays() string {
	return e.resolve("holidays", nil)
}

func (e endpoints) dated(studentID, kind, from, to string, year int) string {
	q := url.Values{}
	q.Set("from", from)
	q.Set("to", to)
	q.Set("year", strconv.Itoa(year))
	return e.resolve("students/"+studentID+"/"+kind, q)
}

func (e endpoints) homework(studentID, from, to string, year int) string {
	return e.dated(studentID, "homework", from, to, year)
}

func (e endpoints) behavior(studentID, from, to string, year int) string {
	return e.dated(studentID, "behave", from, to, year)
}

func (e endpoints) weeklyPlan(studentID string) string {
	return e.resolve("students/"+studentID+"/lessons/plans", nil)
}

func (e endpoints) timetable(studentID string) string {
	return e.resolve("students/"+studentID+"/timetable", nil)
}

func (e endpoints) lessonsHistory(studentID string) string {
	return e.resolve("students/"+studentID+"/lessons/history", nil)
}

// schoolCatalog lists the catalog URLs tried in order when resolving a school by name.
func (e endpoints) schoolCatalog(query string, year int) []string {
	search := url.Values{"search": []string{query}}
	byYear := url.Values{"year": []string{strconv.Itoa(year)}}
	return []string{
		e.resolve("schools", search),
		e.resolve("schools", byYear),
		e.resolve("schools", nil),
		e.resolve("institutions", search),
		e.resolve("institutions", nil),
	}
}
