package igdm

import "context"

// API is the boundary to the platform's private HTTP endpoints. The client
// never talks HTTP itself; everything goes through this interface so tests
// (and alternative transports) can substitute their own implementation.
type API interface {
	// RestoreSession loads a serialized session artifact into the transport.
	RestoreSession(data []byte) error
	// ExportSession serializes the current authenticated session, stripped
	// of any non-credential metadata.
	ExportSession() ([]byte, error)
	// SetCookie installs one transport-level cookie into the session's
	// cookie store. cookie is a Set-Cookie style string, rawURL the scope.
	SetCookie(cookie, rawURL string) error

	// CurrentUser is the authoritative "who am I" round-trip used to
	// validate restored credentials.
	CurrentUser(ctx context.Context) (*UserPayload, error)
	UserByName(ctx context.Context, username string) (*UserPayload, error)
	UserByID(ctx context.Context, id string) (*UserPayload, error)
	Thread(ctx context.Context, id string) (*ChatPayload, error)
	CreateGroupThread(ctx context.Context, userIDs []string) (*ChatPayload, error)
	PendingThreads(ctx context.Context) ([]*ChatPayload, error)
	ApproveThread(ctx context.Context, id string) error
	DeclineThread(ctx context.Context, id string) error
}

// StreamContext carries per-event metadata from the realtime stream,
// primarily the owning thread id.
type StreamContext struct {
	ThreadID string
}

// StreamHandler receives realtime stream callbacks. Implemented by the
// client; callbacks may fire from any transport goroutine.
type StreamHandler interface {
	OnMessage(msg *MessagePayload, sctx *StreamContext)
	OnStreamError(err error)
	OnStreamClose()
}

// StreamClient is the realtime message stream collaborator. Connect returns
// an error if the stream cannot be established; afterwards callbacks fire in
// per-stream arrival order until Disconnect.
type StreamClient interface {
	ConnectStream(ctx context.Context, handler StreamHandler) error
	DisconnectStream() error
}

// Notification is an out-of-band push payload. Unknown categories must be
// tolerated; the router ignores what it does not recognize.
type Notification struct {
	Category string `json:"collapse_key"`
	SourceID string `json:"source_id,omitempty"`
	ThreadID string `json:"thread_id,omitempty"`
	Text     string `json:"text,omitempty"`
}

// Push notification categories handled by the router.
const (
	notifNewFollower    = "new_follower"
	notifFollowRequest  = "follow_request"
	notifPendingRequest = "direct_v2_pending"
)

// PushClient is the out-of-band notification feed collaborator.
type PushClient interface {
	ConnectPush(ctx context.Context, handler func(*Notification)) error
	DisconnectPush() error
}
