package broker

import (
	"context"

	"github.com/deskhive/deskhive/pkg/types"
)

// SessionDescription is the broker's view of one remote session.
type SessionDescription struct {
	BrokerSessionID string                   `json:"id"`
	Name            string                   `json:"name"`
	Owner           string                   `json:"owner"`
	State           types.BrokerSessionState `json:"state"`
	InstanceID      string                   `json:"server_instance_id,omitempty"`
}

// ConnectionData is what a client needs to attach to a ready session.
type ConnectionData struct {
	BrokerSessionID string `json:"session_id"`
	ConnectionToken string `json:"connection_token"`
	Endpoint        string `json:"endpoint"`
	WebURLPath      string `json:"web_url_path,omitempty"`
}

// ActorPermission is one actor's access level pushed to the broker.
type ActorPermission struct {
	ActorName           string `json:"actor_name"`
	PermissionProfileID string `json:"permission_profile_id"`
}

// Screenshot is one captured session frame.
type Screenshot struct {
	BrokerSessionID string `json:"session_id"`
	Format          string `json:"format"`
	Data            []byte `json:"data"`
}

// Client talks to the remote desktop broker. The broker is eventually
// consistent: a successful call means the request was accepted, not that
// the remote session reached the target state. Callers re-validate
// through DescribeSessions.
type Client interface {
	// CreateSession asks the broker to start a remote session on the
	// session's host and returns the broker-assigned session id.
	CreateSession(ctx context.Context, session *types.Session) (string, error)

	// ResumeSession restarts the remote session on a resumed host.
	ResumeSession(ctx context.Context, session *types.Session) error

	// DescribeSessions returns the broker's view of the given broker
	// session ids. Unknown ids are omitted from the result.
	DescribeSessions(ctx context.Context, brokerSessionIDs []string) (map[string]*SessionDescription, error)

	// DeleteSessions requests deletion of the given broker sessions.
	// With force set, the broker drops sessions even when clients are
	// still connected.
	DeleteSessions(ctx context.Context, brokerSessionIDs []string, force bool) error

	// GetSessionConnectionData returns connection details for a READY
	// session.
	GetSessionConnectionData(ctx context.Context, brokerSessionID string) (*ConnectionData, error)

	// GetActiveCounts returns the number of active broker sessions per
	// instance id.
	GetActiveCounts(ctx context.Context) (map[string]int, error)

	// EnforceSessionPermissions replaces the broker-side permission set
	// of a session with the given actors. An empty list revokes all
	// shared access.
	EnforceSessionPermissions(ctx context.Context, brokerSessionID string, permissions []ActorPermission) error

	// GetSessionScreenshots captures current frames of the given
	// sessions, used for session preview thumbnails.
	GetSessionScreenshots(ctx context.Context, brokerSessionIDs []string) ([]*Screenshot, error)
}
