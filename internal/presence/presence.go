// internal/presence/presence.go
package presence

import (
	"sort"
	"sync"

	"github.com/jason-s-yu/chessroom/internal/protocol"
	"github.com/sirupsen/logrus"
)

// Handle is a live connection as seen by the directory.
type Handle interface {
	ID() string
	Send(protocol.Outbound) error
}

// Directory maps user ids to the connection that most recently claimed them,
// and tracks every live connection as a listener for updateUsers.
type Directory struct {
	mu        sync.Mutex
	users     map[string]Handle
	listeners map[string]Handle
	log       logrus.FieldLogger
}

// NewDirectory returns an empty directory.
func NewDirectory(logger logrus.FieldLogger) *Directory {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Directory{
		users:     make(map[string]Handle),
		listeners: make(map[string]Handle),
		log:       logger,
	}
}

// Attach adds h to the set of connections that receive presence broadcasts.
func (d *Directory) Attach(h Handle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listeners[h.ID()] = h
}

// Detach removes h from the listener set.
func (d *Directory) Detach(h Handle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.listeners, h.ID())
}

// Register binds userID to h. A later registration for the same user wins,
// and a connection holds at most one user: any id h claimed before is dropped.
func (d *Directory) Register(userID string, h Handle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for id, cur := range d.users {
		if id != userID && cur.ID() == h.ID() {
			delete(d.users, id)
		}
	}
	if prev, ok := d.users[userID]; ok && prev.ID() != h.ID() {
		d.log.WithFields(logrus.Fields{
			"user_id":  userID,
			"conn_id":  h.ID(),
			"previous": prev.ID(),
		}).Info("presence overwritten by newer connection")
	}
	d.users[userID] = h
}

// Unregister drops every user whose current handle is h and reports the
// last one removed. Handles that were superseded by a newer registration are
// ignored.
func (d *Directory) Unregister(h Handle) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var (
		userID  string
		removed bool
	)
	for id, cur := range d.users {
		if cur.ID() == h.ID() {
			delete(d.users, id)
			userID, removed = id, true
		}
	}
	return userID, removed
}

// Lookup returns the handle currently bound to userID.
func (d *Directory) Lookup(userID string) (Handle, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	h, ok := d.users[userID]
	return h, ok
}

// Users lists the present user ids in sorted order.
func (d *Directory) Users() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.usersUnsafe()
}

func (d *Directory) usersUnsafe() []string {
	ids := make([]string, 0, len(d.users))
	for id := range d.users {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Broadcast sends the current user list to every listener.
func (d *Directory) Broadcast() {
	d.mu.Lock()
	ev := protocol.UpdateUsers{Users: d.usersUnsafe()}
	listeners := make([]Handle, 0, len(d.listeners))
	for _, h := range d.listeners {
		listeners = append(listeners, h)
	}
	d.mu.Unlock()

	for _, h := range listeners {
		if err := h.Send(ev); err != nil {
			d.log.WithFields(logrus.Fields{
				"conn_id": h.ID(),
				"event":   ev.Event(),
			}).WithError(err).Warn("presence notification not delivered")
		}
	}
}
