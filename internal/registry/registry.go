// Package registry keeps the enrolled users and their optional details in a
// JSON document: {"<name>": {"age": "...", "address": "..."}}.
package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/google/renameio"

	"github.com/kozaktomas/face-attendance/internal/attendance"
)

var (
	// ErrUserNotFound is returned when a name is not registered.
	ErrUserNotFound = errors.New("user not found")
	// ErrUserExists is returned when adding a name that is already registered.
	ErrUserExists = errors.New("user already exists")
)

// Info is the optional detail kept per user.
type Info struct {
	Age     string `json:"age,omitempty"`
	Address string `json:"address,omitempty"`
}

// User is a registered name with its details.
type User struct {
	Name string `json:"name"`
	Info
}

// Registry is a file-backed set of users. Every mutation is saved before it
// returns.
type Registry struct {
	mu     sync.RWMutex
	path   string
	users  map[string]Info
	logger *slog.Logger
}

// Option configures a Registry.
type Option func(r *Registry)

// WithLogger sets the logger for registry changes.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// Open loads the registry at path. A missing file is an empty registry.
func Open(path string, opts ...Option) (*Registry, error) {
	r := &Registry{
		path:   path,
		users:  make(map[string]Info),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return r, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return r, nil
	}

	var raw map[string]Info
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	for name, info := range raw {
		if name = attendance.NormalizeName(name); name != "" {
			r.users[name] = info
		}
	}
	r.logger.Debug("user registry loaded", "path", path, "users", len(r.users))
	return r, nil
}

// List returns every user sorted by name.
func (r *Registry) List() []User {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := make([]User, 0, len(r.users))
	for name, info := range r.users {
		users = append(users, User{Name: name, Info: info})
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Name < users[j].Name })
	return users
}

// Names returns every registered name, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.users))
	for name := range r.users {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Get returns the details of one user.
func (r *Registry) Get(name string) (User, error) {
	name = attendance.NormalizeName(name)
	r.mu.RLock()
	defer r.mu.RUnlock()

	info, ok := r.users[name]
	if !ok {
		return User{}, fmt.Errorf("%w: %s", ErrUserNotFound, name)
	}
	return User{Name: name, Info: info}, nil
}

// Add registers a new user.
func (r *Registry) Add(name string, info Info) (User, error) {
	name = attendance.NormalizeName(name)
	if name == "" {
		return User{}, attendance.ErrEmptyPerson
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[name]; ok {
		return User{}, fmt.Errorf("%w: %s", ErrUserExists, name)
	}
	r.users[name] = info
	if err := r.save(); err != nil {
		delete(r.users, name)
		return User{}, err
	}
	return User{Name: name, Info: info}, nil
}

// Ensure registers name with empty details unless it is already known.
// It reports whether the user was added.
func (r *Registry) Ensure(name string) (bool, error) {
	_, err := r.Add(name, Info{})
	if errors.Is(err, ErrUserExists) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// EnsureAll registers every name not yet known and returns the added names.
func (r *Registry) EnsureAll(names []string) ([]string, error) {
	var added []string
	for _, name := range names {
		ok, err := r.Ensure(name)
		if err != nil {
			return added, err
		}
		if ok {
			added = append(added, attendance.NormalizeName(name))
		}
	}
	if len(added) > 0 {
		r.logger.Info("registered gallery people", "names", added)
	}
	return added, nil
}

// Update changes a user's details. Empty fields keep their current value.
func (r *Registry) Update(name string, info Info) (User, error) {
	name = attendance.NormalizeName(name)

	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.users[name]
	if !ok {
		return User{}, fmt.Errorf("%w: %s", ErrUserNotFound, name)
	}
	updated := current
	if info.Age != "" {
		updated.Age = info.Age
	}
	if info.Address != "" {
		updated.Address = info.Address
	}

	r.users[name] = updated
	if err := r.save(); err != nil {
		r.users[name] = current
		return User{}, err
	}
	return User{Name: name, Info: updated}, nil
}

// Delete removes a user.
func (r *Registry) Delete(name string) error {
	name = attendance.NormalizeName(name)

	r.mu.Lock()
	defer r.mu.Unlock()

	info, ok := r.users[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUserNotFound, name)
	}
	delete(r.users, name)
	if err := r.save(); err != nil {
		r.users[name] = info
		return err
	}
	return nil
}

// save must be called with r.mu held.
func (r *Registry) save() error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r.users); err != nil {
		return fmt.Errorf("encode registry: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return fmt.Errorf("create registry directory: %w", err)
	}
	if err := renameio.WriteFile(r.path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", r.path, err)
	}
	return nil
}

// Roster merges registered names with the people enrolled in the face
// gallery, de-duplicated and sorted.
func Roster(registered, enrolled []string) []string {
	all := make([]string, 0, len(registered)+len(enrolled))
	all = append(all, registered...)
	all = append(all, enrolled...)
	return attendance.UniqueNames(all)
}
