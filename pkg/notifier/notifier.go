package notifier

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"

	"github.com/deskhive/deskhive/pkg/events"
	"github.com/deskhive/deskhive/pkg/log"
	"github.com/deskhive/deskhive/pkg/storage"
	"github.com/deskhive/deskhive/pkg/types"
)

// Watched table names carried in change event details.
const (
	TableSessions           = "sessions"
	TableSessionPermissions = "session_permissions"
)

// Detail keys of change events.
const (
	DetailTableName = "table_name"
	DetailHashKey   = "hash_key"
	DetailRangeKey  = "range_key"
	DetailOldEntry  = "old_entry"
	DetailNewEntry  = "new_entry"
)

// Store wraps a storage.Store and publishes a change event for every
// mutation of a watched table, carrying the old and new record
// snapshots. Reads and mutations of unwatched tables pass through
// untouched.
//
// Publish failures never fail the mutation: state is the source of
// truth and projections converge on the next change or sweep.
type Store struct {
	storage.Store
	publisher events.Publisher
	logger    zerolog.Logger
}

// New wraps a store with change notification.
func New(store storage.Store, publisher events.Publisher) *Store {
	return &Store{
		Store:     store,
		publisher: publisher,
		logger:    log.WithComponent("notifier"),
	}
}

// Session mutations

func (s *Store) CreateSession(session *types.Session) error {
	if err := s.Store.CreateSession(session); err != nil {
		return err
	}
	s.publish(events.EventDBEntryCreated, TableSessions, session.Owner, session.SessionID, nil, session)
	return nil
}

func (s *Store) UpdateSession(session *types.Session) error {
	old, err := s.Store.GetSession(session.Owner, session.SessionID)
	if err != nil && !storage.IsNotFound(err) {
		return err
	}
	if err := s.Store.UpdateSession(session); err != nil {
		return err
	}
	s.publish(events.EventDBEntryUpdated, TableSessions, session.Owner, session.SessionID, old, session)
	return nil
}

func (s *Store) DeleteSession(owner, sessionID string) error {
	old, err := s.Store.GetSession(owner, sessionID)
	if err != nil && !storage.IsNotFound(err) {
		return err
	}
	if err := s.Store.DeleteSession(owner, sessionID); err != nil {
		return err
	}
	if old != nil {
		s.publish(events.EventDBEntryDeleted, TableSessions, owner, sessionID, old, nil)
	}
	return nil
}

// Session permission mutations

func (s *Store) PutSessionPermission(perm *types.SessionPermission) error {
	old, err := s.Store.GetSessionPermission(perm.SessionID, perm.ActorName)
	if err != nil && !storage.IsNotFound(err) {
		return err
	}
	if err := s.Store.PutSessionPermission(perm); err != nil {
		return err
	}
	if old == nil {
		s.publish(events.EventDBEntryCreated, TableSessionPermissions, perm.SessionID, perm.ActorName, nil, perm)
	} else {
		s.publish(events.EventDBEntryUpdated, TableSessionPermissions, perm.SessionID, perm.ActorName, old, perm)
	}
	return nil
}

func (s *Store) DeleteSessionPermission(sessionID, actorName string) error {
	old, err := s.Store.GetSessionPermission(sessionID, actorName)
	if err != nil && !storage.IsNotFound(err) {
		return err
	}
	if err := s.Store.DeleteSessionPermission(sessionID, actorName); err != nil {
		return err
	}
	if old != nil {
		s.publish(events.EventDBEntryDeleted, TableSessionPermissions, sessionID, actorName, old, nil)
	}
	return nil
}

func (s *Store) DeletePermissionsBySession(sessionID string) error {
	perms, err := s.Store.ListPermissionsBySession(sessionID)
	if err != nil {
		return err
	}
	if err := s.Store.DeletePermissionsBySession(sessionID); err != nil {
		return err
	}
	for _, perm := range perms {
		s.publish(events.EventDBEntryDeleted, TableSessionPermissions, sessionID, perm.ActorName, perm, nil)
	}
	return nil
}

// publish emits a change event keyed by the record's primary key. The
// hash-range pair forms the ordering group, so changes to one record
// are consumed in the order they were made.
func (s *Store) publish(t events.EventType, table, hashKey, rangeKey string, oldEntry, newEntry any) {
	event := &events.Event{
		GroupID: hashKey + "-" + rangeKey,
		Type:    t,
		Detail: map[string]any{
			DetailTableName: table,
			DetailHashKey:   hashKey,
			DetailRangeKey:  rangeKey,
		},
	}
	if oldEntry != nil {
		event.Detail[DetailOldEntry] = toMap(oldEntry)
	}
	if newEntry != nil {
		event.Detail[DetailNewEntry] = toMap(newEntry)
	}
	if err := s.publisher.Publish(context.Background(), event); err != nil {
		s.logger.Error().Err(err).
			Str("table", table).
			Str("event_type", string(t)).
			Msg("Failed to publish change event")
	}
}

// toMap converts a record to its event detail representation.
func toMap(v any) map[string]any {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil
	}
	return m
}
