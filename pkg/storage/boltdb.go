package storage

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	bolt "go.etcd.io/bbolt"

	"github.com/deskhive/deskhive/pkg/types"
)

var (
	// Bucket names
	bucketSessions       = []byte("sessions")
	bucketServers        = []byte("servers")
	bucketPermissions    = []byte("session_permissions")
	bucketCounters       = []byte("session_counters")
	bucketCommands       = []byte("remote_commands")
	bucketSoftwareStacks = []byte("software_stacks")
	bucketSchedules      = []byte("schedules")
)

// Composite keys. Sessions are keyed owner#session_id so one owner's
// sessions are contiguous; lookups by session id alone scan the bucket.
func sessionKey(owner, sessionID string) []byte {
	return []byte(owner + "#" + sessionID)
}

func permissionKey(sessionID, actorName string) []byte {
	return []byte(sessionID + "#" + actorName)
}

func counterKey(sessionID string, t types.CounterType) []byte {
	return []byte(sessionID + "#" + string(t))
}

func stackKey(baseOS types.BaseOS, stackID string) []byte {
	return []byte(string(baseOS) + "#" + stackID)
}

// BoltStore implements Store interface using BoltDB
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore creates a new BoltDB-backed store
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "deskhive.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Create buckets
	err = db.Update(func(tx *bolt.Tx) error {
		buckets := [][]byte{
			bucketSessions,
			bucketServers,
			bucketPermissions,
			bucketCounters,
			bucketCommands,
			bucketSoftwareStacks,
			bucketSchedules,
		}

		for _, bucket := range buckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})

	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Session operations
func (s *BoltStore) CreateSession(session *types.Session) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSessions)
		data, err := json.Marshal(session)
		if err != nil {
			return err
		}
		return b.Put(sessionKey(session.Owner, session.SessionID), data)
	})
}

func (s *BoltStore) GetSession(owner, sessionID string) (*types.Session, error) {
	var session types.Session
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSessions)
		data := b.Get(sessionKey(owner, sessionID))
		if data == nil {
			return fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
		}
		return json.Unmarshal(data, &session)
	})
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (s *BoltStore) GetSessionByID(sessionID string) (*types.Session, error) {
	var found *types.Session
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSessions)
		c := b.Cursor()
		suffix := []byte("#" + sessionID)
		for k, v := c.First(); k != nil; k, v = c.Next() {
			if !strings.HasSuffix(string(k), string(suffix)) {
				continue
			}
			var session types.Session
			if err := json.Unmarshal(v, &session); err != nil {
				return err
			}
			found = &session
			return nil
		}
		return fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

func (s *BoltStore) GetSessionByInstanceID(instanceID string) (*types.Session, error) {
	var found *types.Session
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSessions)
		c := b.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var session types.Session
			if err := json.Unmarshal(v, &session); err != nil {
				return err
			}
			if session.Server != nil && session.Server.InstanceID == instanceID {
				found = &session
				return nil
			}
		}
		return fmt.Errorf("session for instance %s: %w", instanceID, ErrNotFound)
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

func (s *BoltStore) ListSessions() ([]*types.Session, error) {
	var sessions []*types.Session
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSessions)
		return b.ForEach(func(k, v []byte) error {
			var session types.Session
			if err := json.Unmarshal(v, &session); err != nil {
				return err
			}
			sessions = append(sessions, &session)
			return nil
		})
	})
	return sessions, err
}

func (s *BoltStore) ListSessionsByState(states ...types.SessionState) ([]*types.Session, error) {
	sessions, err := s.ListSessions()
	if err != nil {
		return nil, err
	}

	var filtered []*types.Session
	for _, session := range sessions {
		if session.State.OneOf(states...) {
			filtered = append(filtered, session)
		}
	}
	return filtered, nil
}

func (s *BoltStore) UpdateSession(session *types.Session) error {
	return s.CreateSession(session) // Same as create (upsert)
}

func (s *BoltStore) DeleteSession(owner, sessionID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSessions)
		return b.Delete(sessionKey(owner, sessionID))
	})
}

// Server operations
func (s *BoltStore) CreateServer(server *types.Server) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketServers)
		data, err := json.Marshal(server)
		if err != nil {
			return err
		}
		return b.Put([]byte(server.InstanceID), data)
	})
}

func (s *BoltStore) GetServer(instanceID string) (*types.Server, error) {
	var server types.Server
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketServers)
		data := b.Get([]byte(instanceID))
		if data == nil {
			return fmt.Errorf("server %s: %w", instanceID, ErrNotFound)
		}
		return json.Unmarshal(data, &server)
	})
	if err != nil {
		return nil, err
	}
	return &server, nil
}

func (s *BoltStore) ListServers() ([]*types.Server, error) {
	var servers []*types.Server
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketServers)
		return b.ForEach(func(k, v []byte) error {
			var server types.Server
			if err := json.Unmarshal(v, &server); err != nil {
				return err
			}
			servers = append(servers, &server)
			return nil
		})
	})
	return servers, err
}

func (s *BoltStore) UpdateServer(server *types.Server) error {
	return s.CreateServer(server)
}

func (s *BoltStore) DeleteServer(instanceID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketServers)
		return b.Delete([]byte(instanceID))
	})
}

// Session permission operations
func (s *BoltStore) PutSessionPermission(perm *types.SessionPermission) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketPermissions)
		data, err := json.Marshal(perm)
		if err != nil {
			return err
		}
		return b.Put(permissionKey(perm.SessionID, perm.ActorName), data)
	})
}

func (s *BoltStore) GetSessionPermission(sessionID, actorName string) (*types.SessionPermission, error) {
	var perm types.SessionPermission
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketPermissions)
		data := b.Get(permissionKey(sessionID, actorName))
		if data == nil {
			return fmt.Errorf("permission %s/%s: %w", sessionID, actorName, ErrNotFound)
		}
		return json.Unmarshal(data, &perm)
	})
	if err != nil {
		return nil, err
	}
	return &perm, nil
}

func (s *BoltStore) ListSessionPermissions() ([]*types.SessionPermission, error) {
	var perms []*types.SessionPermission
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketPermissions)
		return b.ForEach(func(k, v []byte) error {
			var perm types.SessionPermission
			if err := json.Unmarshal(v, &perm); err != nil {
				return err
			}
			perms = append(perms, &perm)
			return nil
		})
	})
	return perms, err
}

func (s *BoltStore) ListPermissionsBySession(sessionID string) ([]*types.SessionPermission, error) {
	var perms []*types.SessionPermission
	prefix := []byte(sessionID + "#")
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketPermissions).Cursor()
		for k, v := c.Seek(prefix); k != nil && strings.HasPrefix(string(k), string(prefix)); k, v = c.Next() {
			var perm types.SessionPermission
			if err := json.Unmarshal(v, &perm); err != nil {
				return err
			}
			perms = append(perms, &perm)
		}
		return nil
	})
	return perms, err
}

func (s *BoltStore) DeleteSessionPermission(sessionID, actorName string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketPermissions)
		return b.Delete(permissionKey(sessionID, actorName))
	})
}

func (s *BoltStore) DeletePermissionsBySession(sessionID string) error {
	prefix := []byte(sessionID + "#")
	return s.db.Update(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketPermissions).Cursor()
		for k, _ := c.Seek(prefix); k != nil && strings.HasPrefix(string(k), string(prefix)); k, _ = c.Next() {
			if err := c.Delete(); err != nil {
				return err
			}
		}
		return nil
	})
}

// Counter operations

// GetCounter returns the stored counter, or a zero-count counter when
// none exists yet.
func (s *BoltStore) GetCounter(sessionID string, t types.CounterType) (*types.SessionCounter, error) {
	counter := types.SessionCounter{SessionID: sessionID, Type: t}
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCounters)
		data := b.Get(counterKey(sessionID, t))
		if data == nil {
			return nil
		}
		return json.Unmarshal(data, &counter)
	})
	if err != nil {
		return nil, err
	}
	return &counter, nil
}

// IncrementCounter atomically increments a counter and returns the new
// count. A missing counter starts from zero, so the first increment
// returns 1.
func (s *BoltStore) IncrementCounter(sessionID string, t types.CounterType) (int, error) {
	var count int
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCounters)
		key := counterKey(sessionID, t)
		counter := types.SessionCounter{SessionID: sessionID, Type: t}
		if data := b.Get(key); data != nil {
			if err := json.Unmarshal(data, &counter); err != nil {
				return err
			}
		}
		counter.Count++
		count = counter.Count
		data, err := json.Marshal(&counter)
		if err != nil {
			return err
		}
		return b.Put(key, data)
	})
	return count, err
}

func (s *BoltStore) DeleteCounter(sessionID string, t types.CounterType) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCounters)
		return b.Delete(counterKey(sessionID, t))
	})
}

func (s *BoltStore) DeleteCountersBySession(sessionID string) error {
	prefix := []byte(sessionID + "#")
	return s.db.Update(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketCounters).Cursor()
		for k, _ := c.Seek(prefix); k != nil && strings.HasPrefix(string(k), string(prefix)); k, _ = c.Next() {
			if err := c.Delete(); err != nil {
				return err
			}
		}
		return nil
	})
}

// Remote command operations
func (s *BoltStore) CreateCommand(cmd *types.RemoteCommand) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCommands)
		data, err := json.Marshal(cmd)
		if err != nil {
			return err
		}
		return b.Put([]byte(cmd.CommandID), data)
	})
}

func (s *BoltStore) GetCommand(commandID string) (*types.RemoteCommand, error) {
	var cmd types.RemoteCommand
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCommands)
		data := b.Get([]byte(commandID))
		if data == nil {
			return fmt.Errorf("command %s: %w", commandID, ErrNotFound)
		}
		return json.Unmarshal(data, &cmd)
	})
	if err != nil {
		return nil, err
	}
	return &cmd, nil
}

func (s *BoltStore) DeleteCommand(commandID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCommands)
		return b.Delete([]byte(commandID))
	})
}

// Software stack operations
func (s *BoltStore) CreateSoftwareStack(stack *types.SoftwareStack) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSoftwareStacks)
		data, err := json.Marshal(stack)
		if err != nil {
			return err
		}
		return b.Put(stackKey(stack.BaseOS, stack.StackID), data)
	})
}

func (s *BoltStore) GetSoftwareStack(baseOS types.BaseOS, stackID string) (*types.SoftwareStack, error) {
	var stack types.SoftwareStack
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSoftwareStacks)
		data := b.Get(stackKey(baseOS, stackID))
		if data == nil {
			return fmt.Errorf("software stack %s: %w", stackID, ErrNotFound)
		}
		return json.Unmarshal(data, &stack)
	})
	if err != nil {
		return nil, err
	}
	return &stack, nil
}

func (s *BoltStore) ListSoftwareStacks() ([]*types.SoftwareStack, error) {
	var stacks []*types.SoftwareStack
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSoftwareStacks)
		return b.ForEach(func(k, v []byte) error {
			var stack types.SoftwareStack
			if err := json.Unmarshal(v, &stack); err != nil {
				return err
			}
			stacks = append(stacks, &stack)
			return nil
		})
	})
	return stacks, err
}

func (s *BoltStore) UpdateSoftwareStack(stack *types.SoftwareStack) error {
	return s.CreateSoftwareStack(stack)
}

// Schedule operations
func (s *BoltStore) CreateSchedule(schedule *types.Schedule) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSchedules)
		data, err := json.Marshal(schedule)
		if err != nil {
			return err
		}
		return b.Put([]byte(schedule.ScheduleID), data)
	})
}

func (s *BoltStore) GetSchedule(scheduleID string) (*types.Schedule, error) {
	var schedule types.Schedule
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSchedules)
		data := b.Get([]byte(scheduleID))
		if data == nil {
			return fmt.Errorf("schedule %s: %w", scheduleID, ErrNotFound)
		}
		return json.Unmarshal(data, &schedule)
	})
	if err != nil {
		return nil, err
	}
	return &schedule, nil
}

func (s *BoltStore) ListSchedules() ([]*types.Schedule, error) {
	var schedules []*types.Schedule
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSchedules)
		return b.ForEach(func(k, v []byte) error {
			var schedule types.Schedule
			if err := json.Unmarshal(v, &schedule); err != nil {
				return err
			}
			schedules = append(schedules, &schedule)
			return nil
		})
	})
	return schedules, err
}

func (s *BoltStore) UpdateSchedule(schedule *types.Schedule) error {
	return s.CreateSchedule(schedule)
}

func (s *BoltStore) DeleteSchedulesBySession(sessionID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketSchedules).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var schedule types.Schedule
			if err := json.Unmarshal(v, &schedule); err != nil {
				continue
			}
			if schedule.SessionID == sessionID {
				if err := c.Delete(); err != nil {
					return err
				}
			}
		}
		return nil
	})
}
