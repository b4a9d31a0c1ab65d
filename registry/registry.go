// Package registry owns per-session module state: the cache of finished
// modules, the in-flight loading set used to break circular requires, and the
// ordered set of source files touched during the session.
//
// A path moves through exactly one lifecycle: Unseen -> Loading -> Loaded, or
// Unseen -> Loading -> evicted on failure. It is never in both the cache and
// the loading set at once, and a failed module is not cached so a later load
// retries from scratch.
package registry

import (
	"github.com/dop251/goja"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// State is a module record's lifecycle position.
type State uint8

const (
	// StateLoading marks a record whose body is currently executing.
	StateLoading State = iota
	// StateLoaded marks a record whose exports are final and cached.
	StateLoaded
)

// Record tracks one module for the lifetime of a session. Its exports object
// identity is fixed the moment the executor publishes it; circular requesters
// receive that same object while the body is still running.
type Record struct {
	ID        string
	state     State
	exports   goja.Value
	namespace bool
}

// State returns the record's lifecycle position.
func (r *Record) State() State { return r.state }

// Exports returns the record's exports value. During loading this is the
// partially populated object published by the executor.
func (r *Record) Exports() goja.Value { return r.exports }

// Publish installs the exports container before the module body runs, so
// circular requesters can observe it mid-execution. Properties the body has
// not assigned yet are simply absent; that is the documented circular
// dependency caveat, not a defect.
func (r *Record) Publish(v goja.Value) { r.exports = v }

// MarkNamespace flags the exports value as an ECMAScript-module namespace
// object. The flag follows the executed form of the source, not its file
// extension, so it also covers .js files promoted by syntax detection.
func (r *Record) MarkNamespace() { r.namespace = true }

// Namespace reports whether the exports value is a module namespace object.
func (r *Record) Namespace() bool { return r.namespace }

// ExecFunc compiles and runs one module body. It must call Record.Publish
// before executing the body and return the final exports value.
type ExecFunc func(rec *Record) (goja.Value, error)

// Session is the registry state for one top-level load call. Sessions are
// single-threaded; the loading set is shared by reference down the whole
// recursive require chain and never crosses sessions.
type Session struct {
	id      string
	log     *zap.Logger
	cache   map[string]*Record
	loading map[string]*Record
	touched []string
	seen    map[string]bool
}

// NewSession creates an empty session. A nil logger defaults to a no-op
// logger.
func NewSession(log *zap.Logger) *Session {
	if log == nil {
		log = zap.NewNop()
	}
	id := uuid.NewString()
	return &Session{
		id:      id,
		log:     log.With(zap.String("session", id)),
		cache:   make(map[string]*Record),
		loading: make(map[string]*Record),
		seen:    make(map[string]bool),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Load returns the exports for path, executing the module at most once per
// session. A path already in the loading set is a circular reference and gets
// the in-flight record's exports immediately.
func (s *Session) Load(path string, exec ExecFunc) (goja.Value, error) {
	if rec, ok := s.loading[path]; ok {
		s.log.Debug("circular reference, returning partial exports", zap.String("path", path))
		return rec.Exports(), nil
	}
	if rec, ok := s.cache[path]; ok {
		return rec.Exports(), nil
	}

	rec := &Record{ID: path, state: StateLoading}
	s.loading[path] = rec

	exports, err := exec(rec)
	if err != nil {
		// Evict without caching so an unrelated later load retries.
		delete(s.loading, path)
		return nil, err
	}

	rec.exports = exports
	rec.state = StateLoaded
	delete(s.loading, path)
	s.cache[path] = rec
	s.touch(path)
	s.log.Debug("module loaded", zap.String("path", path))
	return exports, nil
}

// Cached returns the finished record for path, if any.
func (s *Session) Cached(path string) (*Record, bool) {
	rec, ok := s.cache[path]
	return rec, ok
}

// Lookup returns the record for path whether it is still loading or already
// cached.
func (s *Session) Lookup(path string) (*Record, bool) {
	if rec, ok := s.loading[path]; ok {
		return rec, true
	}
	rec, ok := s.cache[path]
	return rec, ok
}

// SourceFiles returns the source files executed by this session, in
// completion order: dependencies precede their requesters, each path once.
func (s *Session) SourceFiles() []string {
	out := make([]string, len(s.touched))
	copy(out, s.touched)
	return out
}

func (s *Session) touch(path string) {
	if s.seen[path] {
		return
	}
	s.seen[path] = true
	s.touched = append(s.touched, path)
}
