package handlers

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/deskhive/deskhive/pkg/broker"
	"github.com/deskhive/deskhive/pkg/cloud"
	"github.com/deskhive/deskhive/pkg/config"
	"github.com/deskhive/deskhive/pkg/events"
	"github.com/deskhive/deskhive/pkg/lifecycle"
	"github.com/deskhive/deskhive/pkg/log"
	"github.com/deskhive/deskhive/pkg/storage"
	"github.com/deskhive/deskhive/pkg/types"
)

func init() {
	log.Init(log.Config{Level: log.ErrorLevel, JSONOutput: true, Output: io.Discard})
}

var errBrokerDown = errors.New("broker unavailable")

// fakeBroker records calls and serves staged responses.
type fakeBroker struct {
	mu          sync.Mutex
	nextID      string
	createErr   error
	described   map[string]*broker.SessionDescription
	createCalls int
	resumeCalls int
	deleteCalls int
	lastForce   bool
	enforced    map[string][]broker.ActorPermission
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{
		nextID:    "b-1",
		described: make(map[string]*broker.SessionDescription),
		enforced:  make(map[string][]broker.ActorPermission),
	}
}

func (f *fakeBroker) CreateSession(ctx context.Context, session *types.Session) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	if f.createErr != nil {
		return "", f.createErr
	}
	return f.nextID, nil
}

func (f *fakeBroker) ResumeSession(ctx context.Context, session *types.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resumeCalls++
	return nil
}

func (f *fakeBroker) DescribeSessions(ctx context.Context, ids []string) (map[string]*broker.SessionDescription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]*broker.SessionDescription)
	for _, id := range ids {
		if desc, ok := f.described[id]; ok {
			out[id] = desc
		}
	}
	return out, nil
}

func (f *fakeBroker) DeleteSessions(ctx context.Context, ids []string, force bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteCalls++
	f.lastForce = force
	return nil
}

func (f *fakeBroker) GetSessionConnectionData(ctx context.Context, id string) (*broker.ConnectionData, error) {
	return &broker.ConnectionData{BrokerSessionID: id}, nil
}

func (f *fakeBroker) GetActiveCounts(ctx context.Context) (map[string]int, error) {
	return nil, nil
}

func (f *fakeBroker) EnforceSessionPermissions(ctx context.Context, id string, perms []broker.ActorPermission) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enforced[id] = perms
	return nil
}

func (f *fakeBroker) GetSessionScreenshots(ctx context.Context, ids []string) ([]*broker.Screenshot, error) {
	return nil, nil
}

// capturePublisher collects published events.
type capturePublisher struct {
	mu     sync.Mutex
	events []*events.Event
}

func (p *capturePublisher) Publish(ctx context.Context, event *events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *capturePublisher) byType(t events.EventType) []*events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []*events.Event
	for _, e := range p.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type testEnv struct {
	store    *storage.BoltStore
	broker   *fakeBroker
	compute  *cloud.FakeCompute
	commands *cloud.FakeCommands
	pub      *capturePublisher
	cfg      *config.Config
	h        *Handlers
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	fb := newFakeBroker()
	compute := cloud.NewFakeCompute()
	commands := cloud.NewFakeCommands()
	pub := &capturePublisher{}
	cfg := config.DefaultConfig()

	lc := lifecycle.NewManager(store, fb, compute, commands, pub)
	return &testEnv{
		store:    store,
		broker:   fb,
		compute:  compute,
		commands: commands,
		pub:      pub,
		cfg:      cfg,
		h:        New(store, lc, fb, compute, commands, pub, cfg),
	}
}

// seedSession stores a session with a running instance.
func (e *testEnv) seedSession(t *testing.T, sessionID string, state types.SessionState) *types.Session {
	t.Helper()
	session := &types.Session{
		SessionID: sessionID,
		Owner:     "alice",
		Name:      "desktop-" + sessionID,
		State:     state,
		Server: &types.Server{
			InstanceID:   "i-" + sessionID,
			InstanceType: "t3.large",
			State:        types.ServerStateCreated,
		},
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	require.NoError(t, e.store.CreateSession(session))
	require.NoError(t, e.store.CreateServer(session.Server))
	e.compute.AddInstance(session.Server.InstanceID, cloud.InstanceRunning)
	return session
}

func (e *testEnv) session(t *testing.T, sessionID string) *types.Session {
	t.Helper()
	session, err := e.store.GetSession("alice", sessionID)
	require.NoError(t, err)
	return session
}

// delivery builds a delivery from a trusted or untrusted sender.
func delivery(eventType events.EventType, senderID string, detail map[string]any) events.Delivery {
	return events.Delivery{
		MessageID: "msg-1",
		SenderID:  senderID,
		Event: &events.Event{
			GroupID: "g",
			Type:    eventType,
			Detail:  detail,
		},
	}
}

func sessionDetail(sessionID string) map[string]any {
	return map[string]any{"session_id": sessionID, "owner": "alice"}
}
