// Package statusapi implements an optional local HTTP server (`wdlrun
// serve`) exposing read-only run/cache inspection endpoints.
package statusapi

import (
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gofiber/fiber/v2"
)

// RunInfo is one task attempt's live status, as reflected by its host_dir's
// presence and contents — there is no separate state file; the filesystem
// itself is the source of truth (mirrors pkg/wfstate's "sandbox as state").
type RunInfo struct {
	ID        string    `json:"id"`
	HostDir   string    `json:"hostDir"`
	State     string    `json:"state"` // "running", "done", "failed"
	UpdatedAt time.Time `json:"updatedAt"`
}

// Server serves a read-only view over a run directory and a call-cache
// directory, live-updated via fsnotify so the view stays current while a
// run is in flight.
type Server struct {
	app      *fiber.App
	runDir   string
	cacheDir string

	mu   sync.RWMutex
	runs map[string]*RunInfo

	watcher *fsnotify.Watcher
}

// New builds a Server rooted at runDir (where task sandboxes are created)
// and cacheDir (the call cache root).
func New(runDir, cacheDir string) *Server {
	s := &Server{
		runDir:   runDir,
		cacheDir: cacheDir,
		runs:     map[string]*RunInfo{},
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          30 * time.Second,
	})

	app.Get("/status", s.getStatus)
	app.Get("/runs", s.listRuns)
	app.Get("/runs/:id", s.getRun)
	app.Get("/runs/:id/stdout", s.streamFile("stdout.txt"))
	app.Get("/runs/:id/stderr", s.streamFile("stderr.txt"))
	app.Get("/cache", s.listCache)

	s.app = app
	return s
}

// App returns the underlying fiber app, useful for tests.
func (s *Server) App() *fiber.App { return s.app }

// Listen starts the HTTP server on addr.
func (s *Server) Listen(addr string) error { return s.app.Listen(addr) }

// Shutdown gracefully stops the server and its directory watch.
func (s *Server) Shutdown() error {
	if s.watcher != nil {
		s.watcher.Close()
	}
	return s.app.Shutdown()
}

// WatchRunDir performs an initial scan of runDir and starts an fsnotify
// watch that rescans on any filesystem event, keeping s.runs current
// without polling.
func (s *Server) WatchRunDir() error {
	if err := os.MkdirAll(s.runDir, 0o755); err != nil {
		return err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	s.watcher = w
	if err := w.Add(s.runDir); err != nil {
		w.Close()
		return err
	}
	s.rescan()
	go func() {
		for {
			select {
			case _, ok := <-w.Events:
				if !ok {
					return
				}
				s.rescan()
			case _, ok := <-w.Errors:
				if !ok {
					return
				}
			}
		}
	}()
	return nil
}

func (s *Server) rescan() {
	entries, err := os.ReadDir(s.runDir)
	if err != nil {
		return
	}
	runs := map[string]*RunInfo{}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		hostDir := filepath.Join(s.runDir, e.Name())
		info, err := e.Info()
		if err != nil {
			continue
		}
		runs[e.Name()] = &RunInfo{
			ID:        e.Name(),
			HostDir:   hostDir,
			State:     runState(hostDir),
			UpdatedAt: info.ModTime(),
		}
	}
	s.mu.Lock()
	s.runs = runs
	s.mu.Unlock()
}

// runState infers a coarse status from a host_dir's contents: a rc file
// present means the attempt finished; its content is the exit code.
func runState(hostDir string) string {
	rc, err := os.ReadFile(filepath.Join(hostDir, "rc"))
	if err != nil {
		return "running"
	}
	if string(rc) == "0\n" || string(rc) == "0" {
		return "done"
	}
	return "failed"
}

func (s *Server) getStatus(c *fiber.Ctx) error {
	s.mu.RLock()
	n := len(s.runs)
	s.mu.RUnlock()
	return c.JSON(fiber.Map{"runDir": s.runDir, "cacheDir": s.cacheDir, "runCount": n})
}

func (s *Server) listRuns(c *fiber.Ctx) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.runs))
	for id := range s.runs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]*RunInfo, len(ids))
	for i, id := range ids {
		out[i] = s.runs[id]
	}
	return c.JSON(out)
}

func (s *Server) getRun(c *fiber.Ctx) error {
	id := c.Params("id")
	s.mu.RLock()
	info, ok := s.runs[id]
	s.mu.RUnlock()
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "no such run"})
	}
	return c.JSON(info)
}

func (s *Server) streamFile(name string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		s.mu.RLock()
		info, ok := s.runs[id]
		s.mu.RUnlock()
		if !ok {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "no such run"})
		}
		return c.SendFile(filepath.Join(info.HostDir, name), false)
	}
}

func (s *Server) listCache(c *fiber.Ctx) error {
	entries, err := os.ReadDir(s.cacheDir)
	if err != nil {
		return c.JSON([]string{})
	}
	digests := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			digests = append(digests, e.Name())
		}
	}
	sort.Strings(digests)
	return c.JSON(digests)
}
