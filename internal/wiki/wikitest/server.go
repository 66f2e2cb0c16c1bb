// Package wikitest runs an in-memory Confluence for tests.
//
// It implements the content endpoints used by wiki.Client: search by title,
// paged listing, create, update with version check, delete and attachment
// upload.
package wikitest

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"
)

// Credentials accepted by the server.
const (
	Username = "bot@example.com"
	APIToken = "secret-token"
)

// Attachment is a stored upload.
type Attachment struct {
	Name        string
	ContentType string
	Data        []byte
}

// Page is a stored page.
type Page struct {
	ID          string
	Space       string
	Title       string
	Version     int
	ParentID    string
	Body        string
	Attachments map[string]Attachment
}

// Server is a fake Confluence. Fail, when set, is consulted before every
// request; a non-zero status is returned as an error response.
type Server struct {
	Fail func(r *http.Request) int

	mu     sync.Mutex
	nextID int
	pages  map[string]*Page
	ts     *httptest.Server
}

// NewServer starts a fake Confluence. Close it with Close.
func NewServer() *Server {
	s := &Server{pages: make(map[string]*Page), nextID: 1000}

	r := chi.NewRouter()
	r.Use(s.auth)
	r.Route("/wiki/rest/api/content", func(r chi.Router) {
		r.Get("/", s.handleList)
		r.Post("/", s.handleCreate)
		r.Put("/{id}", s.handleUpdate)
		r.Delete("/{id}", s.handleDelete)
		r.Put("/{id}/child/attachment", s.handleAttach)
	})

	s.ts = httptest.NewServer(r)
	return s
}

// URL is the base URL to hand to wiki.NewClient.
func (s *Server) URL() string {
	return s.ts.URL + "/wiki"
}

// Close stops the server.
func (s *Server) Close() {
	s.ts.Close()
}

// AddPage seeds a page and returns its id.
func (s *Server) AddPage(space, title string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addLocked(space, title, "", "").ID
}

// Pages returns a copy of every page in a space, sorted by title.
func (s *Server) Pages(space string) []Page {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Page
	for _, p := range s.pages {
		if p.Space != space {
			continue
		}
		cp := *p
		cp.Attachments = make(map[string]Attachment, len(p.Attachments))
		for k, v := range p.Attachments {
			cp.Attachments[k] = v
		}
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Title < out[j].Title })
	return out
}

// Page returns one page by title.
func (s *Server) Page(space, title string) (Page, bool) {
	for _, p := range s.Pages(space) {
		if p.Title == title {
			return p, true
		}
	}
	return Page{}, false
}

func (s *Server) addLocked(space, title, parent, body string) *Page {
	s.nextID++
	p := &Page{
		ID:          strconv.Itoa(s.nextID),
		Space:       space,
		Title:       title,
		Version:     1,
		ParentID:    parent,
		Body:        body,
		Attachments: make(map[string]Attachment),
	}
	s.pages[p.ID] = p
	return p
}

func (s *Server) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, token, ok := r.BasicAuth()
		if !ok || user != Username || token != APIToken {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		if s.Fail != nil {
			if code := s.Fail(r); code != 0 {
				writeError(w, code, "injected failure")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

type contentJSON struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Title   string `json:"title"`
	Space   struct {
		Key string `json:"key"`
	} `json:"space"`
	Version struct {
		Number int `json:"number"`
	} `json:"version"`
	Ancestors []struct {
		ID string `json:"id"`
	} `json:"ancestors"`
	Body struct {
		Storage struct {
			Value string `json:"value"`
		} `json:"storage"`
	} `json:"body"`
}

func toJSON(p *Page) map[string]any {
	return map[string]any{
		"id":      p.ID,
		"type":    "page",
		"title":   p.Title,
		"space":   map[string]string{"key": p.Space},
		"version": map[string]int{"number": p.Version},
	}
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	space := q.Get("spaceKey")
	title, byTitle := q["title"]

	s.mu.Lock()
	var matches []*Page
	for _, p := range s.pages {
		if p.Space != space {
			continue
		}
		if byTitle && p.Title != title[0] {
			continue
		}
		matches = append(matches, p)
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].ID < matches[j].ID })

	start, _ := strconv.Atoi(q.Get("start"))
	limit, err := strconv.Atoi(q.Get("limit"))
	if err != nil || limit <= 0 {
		limit = 25
	}
	end := start + limit
	if start > len(matches) {
		start = len(matches)
	}
	if end > len(matches) {
		end = len(matches)
	}

	results := make([]map[string]any, 0, end-start)
	for _, p := range matches[start:end] {
		results = append(results, toJSON(p))
	}
	next := ""
	if end < len(matches) {
		next = "/rest/api/content?start=" + strconv.Itoa(end)
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"results": results,
		"size":    len(results),
		"_links":  map[string]string{"next": next},
	})
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req contentJSON
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.pages {
		if p.Space == req.Space.Key && p.Title == req.Title {
			writeError(w, http.StatusBadRequest, "a page with this title already exists")
			return
		}
	}

	parent := ""
	if len(req.Ancestors) > 0 {
		parent = req.Ancestors[0].ID
	}
	p := s.addLocked(req.Space.Key, req.Title, parent, req.Body.Storage.Value)
	writeJSON(w, http.StatusOK, toJSON(p))
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var req contentJSON
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pages[chi.URLParam(r, "id")]
	if !ok {
		writeError(w, http.StatusNotFound, "no such page")
		return
	}
	if req.Version.Number != p.Version+1 {
		writeError(w, http.StatusConflict, "version must be incremented")
		return
	}

	p.Version = req.Version.Number
	p.Title = req.Title
	p.Body = req.Body.Storage.Value
	writeJSON(w, http.StatusOK, toJSON(p))
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := chi.URLParam(r, "id")
	if _, ok := s.pages[id]; !ok {
		writeError(w, http.StatusNotFound, "no such page")
		return
	}
	delete(s.pages, id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAttach(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("X-Atlassian-Token") != "no-check" {
		writeError(w, http.StatusForbidden, "XSRF check failed")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pages[chi.URLParam(r, "id")]
	if !ok {
		writeError(w, http.StatusNotFound, "no such page")
		return
	}
	p.Attachments[header.Filename] = Attachment{
		Name:        header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": []map[string]string{{"title": header.Filename}}})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]any{"statusCode": code, "message": msg})
}
