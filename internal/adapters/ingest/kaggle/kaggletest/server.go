// Package kaggletest runs an in-process fake of the Kaggle listing and pull
// endpoints for tests. Pages, notebooks and injected failures are configured
// per route key
package kaggletest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
)

// Credentials accepted by the fake
const (
	Username = "tester"
	Key      = "test-key"
)

// Route keys for Fail, FailAlways and Hits
const CompetitionsKey = "competitions"

// KernelsKey is the route key for one competition's kernel listing
func KernelsKey(competition string) string { return "kernels:" + competition }

// PullKey is the route key for one kernel pull
func PullKey(ref string) string { return "pull:" + ref }

// Server is a fake Kaggle API
type Server struct {
	*httptest.Server

	mu           sync.Mutex
	competitions [][]map[string]any
	kernels      map[string][][]map[string]any
	pulls        map[string]any
	faults       map[string][]int
	always       map[string]int
	hits         map[string]int
	retryAfter   string
	nextID       int
}

// New starts a fake server that is closed with the test
func New(t testing.TB) *Server {
	s := &Server{
		kernels: map[string][][]map[string]any{},
		pulls:   map[string]any{},
		faults:  map[string][]int{},
		always:  map[string]int{},
		hits:    map[string]int{},
	}

	r := chi.NewRouter()
	r.Use(s.basicAuth)
	r.Get("/competitions/list", s.listCompetitions)
	r.Get("/kernels/list", s.listKernels)
	r.Get("/kernels/pull", s.pullKernel)

	s.Server = httptest.NewServer(r)
	t.Cleanup(s.Close)
	return s
}

// SetCompetitions serves the given slugs, one argument per page
func (s *Server) SetCompetitions(pages ...[]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.competitions = nil
	for _, page := range pages {
		recs := make([]map[string]any, 0, len(page))
		for _, slug := range page {
			s.nextID++
			recs = append(recs, map[string]any{
				"ref":       "https://www.kaggle.com/competitions/" + slug,
				"id":        s.nextID,
				"title":     strings.ToUpper(slug[:1]) + slug[1:],
				"category":  "Featured",
				"reward":    "Knowledge",
				"teamCount": s.nextID * 10,
			})
		}
		s.competitions = append(s.competitions, recs)
	}
}

// SetKernels serves owner/slug refs for a competition, one argument per page
func (s *Server) SetKernels(competition string, pages ...[]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out [][]map[string]any
	for _, page := range pages {
		recs := make([]map[string]any, 0, len(page))
		for _, ref := range page {
			s.nextID++
			owner, _, _ := strings.Cut(ref, "/")
			recs = append(recs, map[string]any{
				"ref":         ref,
				"id":          s.nextID,
				"title":       "Kernel " + ref,
				"author":      owner,
				"language":    "python",
				"kernelType":  "notebook",
				"lastRunTime": "2024-01-02T03:04:05Z",
			})
		}
		out = append(out, recs)
	}
	s.kernels[competition] = out
}

// SetNotebook serves a pull response for ref
func (s *Server) SetNotebook(ref, language, kernelType, source string) {
	md := map[string]any{
		"ref":        ref,
		"id":         len(ref),
		"title":      "Kernel " + ref,
		"language":   language,
		"kernelType": kernelType,
	}
	s.SetPull(ref, map[string]any{
		"metadata": md,
		"blob": map[string]any{
			"source":     source,
			"language":   language,
			"kernelType": kernelType,
		},
	})
}

// SetPull serves an arbitrary pull body for ref
func (s *Server) SetPull(ref string, body any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pulls[ref] = body
}

// Fail queues statuses returned, in order, before the route behaves normally
func (s *Server) Fail(key string, statuses ...int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[key] = append(s.faults[key], statuses...)
}

// FailAlways makes the route answer status until cleared with status 0
func (s *Server) FailAlways(key string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if status == 0 {
		delete(s.always, key)
		return
	}
	s.always[key] = status
}

// SetRetryAfter sets the Retry-After header sent with 429 responses
func (s *Server) SetRetryAfter(v string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retryAfter = v
}

// Hits returns how many authenticated requests reached key
func (s *Server) Hits(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[key]
}

func (s *Server) basicAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, k, ok := r.BasicAuth()
		if !ok || u != Username || k != Key {
			http.Error(w, `{"code":401,"message":"Unauthenticated"}`, http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// fault records a hit and reports an injected status, 0 when none
func (s *Server) fault(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hits[key]++
	if st, ok := s.always[key]; ok {
		return st
	}
	if q := s.faults[key]; len(q) > 0 {
		s.faults[key] = q[1:]
		return q[0]
	}
	return 0
}

func (s *Server) writeFault(w http.ResponseWriter, status int) {
	if status == http.StatusTooManyRequests {
		s.mu.Lock()
		ra := s.retryAfter
		s.mu.Unlock()
		if ra != "" {
			w.Header().Set("Retry-After", ra)
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = fmt.Fprintf(w, `{"code":%d,"message":%q}`, status, http.StatusText(status))
}

func pageParam(r *http.Request) int {
	p, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || p < 1 {
		return 1
	}
	return p
}

func pageOf(pages [][]map[string]any, page int) []map[string]any {
	if page-1 < len(pages) {
		return pages[page-1]
	}
	return []map[string]any{}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) listCompetitions(w http.ResponseWriter, r *http.Request) {
	if st := s.fault(CompetitionsKey); st != 0 {
		s.writeFault(w, st)
		return
	}
	s.mu.Lock()
	page := pageOf(s.competitions, pageParam(r))
	s.mu.Unlock()
	writeJSON(w, page)
}

func (s *Server) listKernels(w http.ResponseWriter, r *http.Request) {
	comp := r.URL.Query().Get("competition")
	if st := s.fault(KernelsKey(comp)); st != 0 {
		s.writeFault(w, st)
		return
	}
	s.mu.Lock()
	page := pageOf(s.kernels[comp], pageParam(r))
	s.mu.Unlock()
	writeJSON(w, page)
}

func (s *Server) pullKernel(w http.ResponseWriter, r *http.Request) {
	ref := r.URL.Query().Get("userName") + "/" + r.URL.Query().Get("kernelSlug")
	if st := s.fault(PullKey(ref)); st != 0 {
		s.writeFault(w, st)
		return
	}
	s.mu.Lock()
	body, ok := s.pulls[ref]
	s.mu.Unlock()
	if !ok {
		s.writeFault(w, http.StatusNotFound)
		return
	}
	writeJSON(w, body)
}
