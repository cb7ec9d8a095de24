package igdm

import (
	"sync"
)

// entityCache holds all conversational entities for one client. Entities are
// created once and patched in place on every later sighting, so any reference
// handed out stays current. The lock makes re-entrant access safe when two
// suspended fetches race to insert the same id: whichever upsert runs second
// patches the first's entity instead of creating a divergent copy.
type entityCache struct {
	mu           sync.RWMutex
	users        *OrderedMap[string, *User]
	chats        *OrderedMap[string, *Chat]
	pendingChats *OrderedMap[string, *Chat]
	messages     *OrderedMap[string, *Message]
}

func newEntityCache() *entityCache {
	return &entityCache{
		users:        NewOrderedMap[string, *User](),
		chats:        NewOrderedMap[string, *Chat](),
		pendingChats: NewOrderedMap[string, *Chat](),
		messages:     NewOrderedMap[string, *Message](),
	}
}

// upsertUser creates or patches the cached user for payload.ID and returns
// the cached instance. Fields absent from the payload are preserved.
func (c *entityCache) upsertUser(payload *UserPayload) *User {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.upsertUserLocked(payload)
}

func (c *entityCache) upsertUserLocked(payload *UserPayload) *User {
	user, ok := c.users.Get(payload.ID)
	if !ok {
		user = &User{ID: payload.ID}
		c.users.Set(payload.ID, user)
	}
	patched := false
	if payload.Username != nil {
		user.Username = *payload.Username
		patched = true
	}
	if payload.FullName != nil {
		user.FullName = *payload.FullName
		patched = true
	}
	if payload.IsPrivate != nil {
		user.IsPrivate = *payload.IsPrivate
		patched = true
	}
	if payload.ProfilePicURL != nil {
		user.ProfilePicURL = *payload.ProfilePicURL
		patched = true
	}
	if payload.FollowerCount != nil {
		user.FollowerCount = *payload.FollowerCount
		patched = true
	}
	if patched {
		user.Placeholder = false
	}
	return user
}

// placeholderUser inserts a shell user so callers referencing an
// unfetchable account never get a nil entity. If the user already exists
// the cached instance is returned unchanged.
func (c *entityCache) placeholderUser(id string) *User {
	c.mu.Lock()
	defer c.mu.Unlock()
	if user, ok := c.users.Get(id); ok {
		return user
	}
	user := &User{ID: id, Placeholder: true}
	c.users.Set(id, user)
	return user
}

func (c *entityCache) userByID(id string) (*User, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	user, ok := c.users.Get(id)
	return user, ok
}

// findUser looks up a cached user by id or username.
func (c *entityCache) findUser(query string) (*User, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if user, ok := c.users.Get(query); ok {
		return user, true
	}
	return c.users.Find(func(_ string, u *User) bool {
		return u.Username == query
	})
}

// upsertChat creates or patches a thread. An existing chat is patched
// wherever it currently lives (main or pending); a new one is inserted into
// the pending cache only when the payload itself is flagged pending.
func (c *entityCache) upsertChat(payload *ChatPayload) *Chat {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.upsertChatLocked(payload)
}

func (c *entityCache) upsertChatLocked(payload *ChatPayload) *Chat {
	chat, ok := c.chats.Get(payload.ThreadID)
	if !ok {
		chat, ok = c.pendingChats.Get(payload.ThreadID)
	}
	if !ok {
		chat = &Chat{
			ID:       payload.ThreadID,
			Messages: NewOrderedMap[string, *Message](),
		}
		if payload.Pending != nil && *payload.Pending {
			chat.Pending = true
			c.pendingChats.Set(chat.ID, chat)
		} else {
			c.chats.Set(chat.ID, chat)
		}
	}
	patched := false
	if payload.Title != nil {
		chat.Title = *payload.Title
		patched = true
	}
	if payload.IsGroup != nil {
		chat.IsGroup = *payload.IsGroup
		patched = true
	}
	if len(payload.UserIDs) > 0 {
		chat.UserIDs = payload.UserIDs
		patched = true
	}
	if payload.LastActivityMS != nil {
		chat.LastActivityMS = *payload.LastActivityMS
		patched = true
	}
	if patched {
		chat.Placeholder = false
	}
	return chat
}

// placeholderChat inserts a shell chat keyed by a known thread id, so
// ingestion never fails purely because thread metadata is unavailable.
func (c *entityCache) placeholderChat(id string) *Chat {
	c.mu.Lock()
	defer c.mu.Unlock()
	if chat, ok := c.chats.Get(id); ok {
		return chat
	}
	if chat, ok := c.pendingChats.Get(id); ok {
		return chat
	}
	chat := &Chat{
		ID:          id,
		Messages:    NewOrderedMap[string, *Message](),
		Placeholder: true,
	}
	c.chats.Set(id, chat)
	return chat
}

func (c *entityCache) chatByID(id string) (*Chat, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if chat, ok := c.chats.Get(id); ok {
		return chat, true
	}
	chat, ok := c.pendingChats.Get(id)
	return chat, ok
}

func (c *entityCache) pendingChatByID(id string) (*Chat, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	chat, ok := c.pendingChats.Get(id)
	return chat, ok
}

// upsertMessage creates or patches a message under chat, keeping the chat's
// nested cache and the client-wide message cache pointing at the same
// instance.
func (c *entityCache) upsertMessage(chat *Chat, payload *MessagePayload) *Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	msg, ok := c.messages.Get(payload.ItemID)
	if !ok {
		msg = &Message{
			ID:       payload.ItemID,
			ChatID:   chat.ID,
			SenderID: payload.UserID,
		}
		c.messages.Set(msg.ID, msg)
	}
	if payload.UserID != "" {
		msg.SenderID = payload.UserID
	}
	if payload.ItemType != nil {
		msg.ItemType = *payload.ItemType
	}
	if payload.Text != nil {
		msg.Text = *payload.Text
	}
	chat.Messages.Set(msg.ID, msg)
	return msg
}

// approvePending atomically moves a chat from the pending cache to the main
// cache and clears its pending flag. Returns false if the chat was not
// pending, in which case nothing changes.
func (c *entityCache) approvePending(id string) (*Chat, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	chat, ok := c.pendingChats.Get(id)
	if !ok {
		return nil, false
	}
	c.pendingChats.Delete(id)
	chat.Pending = false
	c.chats.Set(id, chat)
	return chat, true
}

// declinePending removes a chat from the pending cache without adding it to
// the main cache. Returns false if the chat was not pending.
func (c *entityCache) declinePending(id string) (*Chat, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	chat, ok := c.pendingChats.Get(id)
	if !ok {
		return nil, false
	}
	c.pendingChats.Delete(id)
	return chat, true
}
