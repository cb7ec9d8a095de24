// igdm - An unofficial Instagram direct messaging client library for Go.
// Copyright (C) 2025 igdm contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package igdm

// User is a cached Instagram account. Instances are owned by the entity
// cache once inserted; repeated sightings patch the existing instance
// instead of replacing it.
type User struct {
	ID            string
	Username      string
	FullName      string
	IsPrivate     bool
	ProfilePicURL string
	FollowerCount int

	// Placeholder is true for shell users created when a referenced account
	// could not be fetched. Cleared once a real payload patches the entity.
	Placeholder bool
}

// UserPayload is the loosely-structured account record the platform sends.
// Absent fields stay nil and are preserved on the cached entity when patched.
type UserPayload struct {
	ID            string  `json:"pk"`
	Username      *string `json:"username,omitempty"`
	FullName      *string `json:"full_name,omitempty"`
	IsPrivate     *bool   `json:"is_private,omitempty"`
	ProfilePicURL *string `json:"profile_pic_url,omitempty"`
	FollowerCount *int    `json:"follower_count,omitempty"`
}

// Chat is a cached direct thread. A chat lives in exactly one of the main
// chat cache or the pending (message request) cache; approval moves it
// atomically between the two.
type Chat struct {
	ID             string
	Title          string
	IsGroup        bool
	Pending        bool
	UserIDs        []string
	LastActivityMS int64

	// Messages holds this thread's messages in arrival order. Entries are
	// the same *Message instances stored in the client-wide message cache.
	Messages *OrderedMap[string, *Message]

	// Placeholder is true for shell chats created when thread metadata
	// could not be fetched. Cleared once a real payload patches the entity.
	Placeholder bool
}

// ChatPayload is the loosely-structured thread record the platform sends.
type ChatPayload struct {
	ThreadID       string            `json:"thread_id"`
	Title          *string           `json:"thread_title,omitempty"`
	IsGroup        *bool             `json:"is_group,omitempty"`
	Pending        *bool             `json:"pending,omitempty"`
	UserIDs        []string          `json:"users,omitempty"`
	LastActivityMS *int64            `json:"last_activity_at,omitempty"`
	Items          []*MessagePayload `json:"items,omitempty"`
}

// Message is a cached thread item. The same instance is reachable from its
// chat's nested cache and from the client-wide message cache.
type Message struct {
	ID       string
	ChatID   string
	SenderID string
	ItemType string
	Text     string

	// TimestampMS is the normalized send time in unix milliseconds. The
	// platform emits either seconds-scale or microsecond-scale values;
	// ingestion normalizes by magnitude before storing.
	TimestampMS int64
}

// MessagePayload is the loosely-structured thread item the platform sends.
// ItemID and UserID are required at the ingestion boundary; everything else
// is optional.
type MessagePayload struct {
	ItemID    string  `json:"item_id"`
	UserID    string  `json:"user_id"`
	ItemType  *string `json:"item_type,omitempty"`
	Text      *string `json:"text,omitempty"`
	Timestamp int64   `json:"timestamp"`

	// ThreadID is the fallback owning-thread reference for events whose
	// stream context does not carry one.
	ThreadID string `json:"thread_id,omitempty"`
}
