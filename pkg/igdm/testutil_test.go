package igdm

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// fakeAPI is an in-memory stand-in for the platform transport.
type fakeAPI struct {
	mu sync.Mutex

	restoreErr  error
	restored    [][]byte
	exportData  []byte
	exportErr   error
	exportCalls int

	currentUser    *UserPayload
	currentUserErr error

	cookieCalls []string

	usersByID   map[string]*UserPayload
	usersByName map[string]*UserPayload
	userErr     error

	threads    map[string]*ChatPayload
	threadErr  error
	threadReqs []string

	created *ChatPayload

	pending      []*ChatPayload
	pendingErr   error
	pendingCalls int

	approveErr error
	approved   []string
	declineErr error
	declined   []string
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		exportData:  []byte(`{"device_id":"test-device"}`),
		usersByID:   make(map[string]*UserPayload),
		usersByName: make(map[string]*UserPayload),
		threads:     make(map[string]*ChatPayload),
	}
}

func (f *fakeAPI) RestoreSession(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.restored = append(f.restored, data)
	return f.restoreErr
}

func (f *fakeAPI) ExportSession() ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exportCalls++
	return f.exportData, f.exportErr
}

func (f *fakeAPI) SetCookie(cookie, rawURL string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cookieCalls = append(f.cookieCalls, cookie)
	return nil
}

func (f *fakeAPI) setCookieCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.cookieCalls)
}

func (f *fakeAPI) CurrentUser(ctx context.Context) (*UserPayload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.currentUser, f.currentUserErr
}

func (f *fakeAPI) UserByName(ctx context.Context, username string) (*UserPayload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.userErr != nil {
		return nil, f.userErr
	}
	return f.usersByName[username], nil
}

func (f *fakeAPI) UserByID(ctx context.Context, id string) (*UserPayload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.userErr != nil {
		return nil, f.userErr
	}
	return f.usersByID[id], nil
}

func (f *fakeAPI) Thread(ctx context.Context, id string) (*ChatPayload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.threadReqs = append(f.threadReqs, id)
	if f.threadErr != nil {
		return nil, f.threadErr
	}
	return f.threads[id], nil
}

func (f *fakeAPI) CreateGroupThread(ctx context.Context, userIDs []string) (*ChatPayload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.created, nil
}

func (f *fakeAPI) PendingThreads(ctx context.Context) ([]*ChatPayload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pendingCalls++
	return f.pending, f.pendingErr
}

func (f *fakeAPI) pendingCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pendingCalls
}

func (f *fakeAPI) ApproveThread(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.approveErr != nil {
		return f.approveErr
	}
	f.approved = append(f.approved, id)
	return nil
}

func (f *fakeAPI) DeclineThread(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.declineErr != nil {
		return f.declineErr
	}
	f.declined = append(f.declined, id)
	return nil
}

// fakeStream captures the handler so tests can push events by hand. If
// deliverOnConnect is set, those messages are delivered synchronously inside
// ConnectStream, before Login flips the client to ready.
type fakeStream struct {
	mu               sync.Mutex
	handler          StreamHandler
	connectErr       error
	deliverOnConnect []*MessagePayload
	threadOnConnect  string
	disconnects      int
	disconnectErr    error
}

func (f *fakeStream) ConnectStream(ctx context.Context, handler StreamHandler) error {
	if f.connectErr != nil {
		return f.connectErr
	}
	f.mu.Lock()
	f.handler = handler
	msgs := f.deliverOnConnect
	threadID := f.threadOnConnect
	f.mu.Unlock()
	for _, msg := range msgs {
		handler.OnMessage(msg, &StreamContext{ThreadID: threadID})
	}
	return nil
}

func (f *fakeStream) DisconnectStream() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnects++
	return f.disconnectErr
}

func (f *fakeStream) deliver(msg *MessagePayload, threadID string) {
	f.mu.Lock()
	handler := f.handler
	f.mu.Unlock()
	handler.OnMessage(msg, &StreamContext{ThreadID: threadID})
}

type fakePush struct {
	mu            sync.Mutex
	handler       func(*Notification)
	connectErr    error
	disconnects   int
	disconnectErr error
}

func (f *fakePush) ConnectPush(ctx context.Context, handler func(*Notification)) error {
	if f.connectErr != nil {
		return f.connectErr
	}
	f.mu.Lock()
	f.handler = handler
	f.mu.Unlock()
	return nil
}

func (f *fakePush) DisconnectPush() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnects++
	return f.disconnectErr
}

func (f *fakePush) deliver(n *Notification) {
	f.mu.Lock()
	handler := f.handler
	f.mu.Unlock()
	handler(n)
}

func newTestClient(api *fakeAPI, stream *fakeStream, push *fakePush, cfg *Config) *Client {
	if cfg == nil {
		cfg = &Config{}
	}
	return NewClient(api, stream, push, cfg, zerolog.Nop())
}

// startLoop runs the dispatch goroutine without going through Login, for
// tests that exercise handlers directly. The returned stop function must be
// called before the test ends.
func (c *Client) startLoopForTest(ready bool) func() {
	c.stopChan = make(chan struct{})
	c.loopDone = make(chan struct{})
	c.running.Store(true)
	c.ready.Store(ready)
	go c.dispatchLoop()
	return func() {
		if c.running.Swap(false) {
			close(c.stopChan)
			<-c.loopDone
		}
	}
}
