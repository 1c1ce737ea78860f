package moderation

import (
	"context"
	"os"
	"sort"
	"sync"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"

	"github.com/spamsentry/spamsentry/internal/chat"
)

type whitelistFile struct {
	Whitelist []int64 `yaml:"whitelist"`
}

// Whitelist combines the operator-managed, file-persisted whitelist with a
// volatile admin set rebuilt from the live administrator roster. The admin
// set is best effort and never persisted.
type Whitelist struct {
	path   string
	logger *log.Entry

	mu     sync.RWMutex
	users  map[int64]struct{}
	admins map[int64]struct{}
}

// LoadWhitelist reads the whitelist file; a missing file yields an empty set.
func LoadWhitelist(path string) (*Whitelist, error) {
	w := &Whitelist{
		path:   path,
		logger: log.WithField("object", "Whitelist"),
		users:  map[int64]struct{}{},
		admins: map[int64]struct{}{},
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			w.logger.WithField("path", path).Warn("whitelist file not found, starting empty")
			return w, nil
		}
		return nil, err
	}

	var file whitelistFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, err
	}
	for _, id := range file.Whitelist {
		w.users[id] = struct{}{}
	}
	w.logger.WithField("size", len(w.users)).Info("whitelist loaded")
	return w, nil
}

// IsProtected reports whether the user is exempt from classification.
func (w *Whitelist) IsProtected(userID int64) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if _, ok := w.users[userID]; ok {
		return true
	}
	_, ok := w.admins[userID]
	return ok
}

func (w *Whitelist) IsAdmin(userID int64) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	_, ok := w.admins[userID]
	return ok
}

// Add puts the user on the whitelist and persists it. Returns false if the
// user was already present.
func (w *Whitelist) Add(userID int64) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.users[userID]; ok {
		return false, nil
	}
	w.users[userID] = struct{}{}
	return true, w.saveLocked()
}

// Remove takes the user off the whitelist and persists it. Returns false if
// the user was not present.
func (w *Whitelist) Remove(userID int64) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.users[userID]; !ok {
		return false, nil
	}
	delete(w.users, userID)
	return true, w.saveLocked()
}

func (w *Whitelist) Users() []int64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	ids := make([]int64, 0, len(w.users))
	for id := range w.users {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (w *Whitelist) Size() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.users)
}

// RefreshAdmins replaces the volatile admin set from the live roster.
func (w *Whitelist) RefreshAdmins(ctx context.Context, adapter chat.Adapter, chatID int64) error {
	ids, err := adapter.ListAdministrators(ctx, chatID)
	if err != nil {
		return err
	}
	admins := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		admins[id] = struct{}{}
	}

	w.mu.Lock()
	w.admins = admins
	w.mu.Unlock()

	w.logger.WithField("admins", len(admins)).Info("admin roster refreshed")
	return nil
}

func (w *Whitelist) saveLocked() error {
	ids := make([]int64, 0, len(w.users))
	for id := range w.users {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	data, err := yaml.Marshal(whitelistFile{Whitelist: ids})
	if err != nil {
		return err
	}
	return os.WriteFile(w.path, data, 0o644)
}
