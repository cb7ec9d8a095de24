// igdm - An unofficial Instagram direct messaging client library for Go.
// Copyright (C) 2025 igdm contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package igdm

import "time"

type Config struct {
	// SessionPath is where the serialized session artifact lives. Written
	// after every credential-establishing event and periodically while
	// connected.
	SessionPath string `yaml:"session_path"`

	// CookiesPath points to a JSON array of exported browser cookies, used
	// as the fallback credential path when no session artifact validates.
	CookiesPath string `yaml:"cookies_path"`

	// ArchivePath enables the local sqlite message archive when non-empty.
	ArchivePath string `yaml:"archive_path"`

	// DedupCapacity bounds the recently-seen message id window. When the
	// window exceeds this size, the oldest id is evicted.
	DedupCapacity int `yaml:"dedup_capacity"`

	// StalenessGrace is how far in the past a message timestamp may lie and
	// still be emitted as a live event. Older messages are cached but not
	// emitted, which keeps historical thread catch-up from generating
	// notification noise.
	StalenessGrace time.Duration `yaml:"staleness_grace"`

	// MicroTimestampThreshold separates seconds-scale from microsecond-scale
	// timestamps. The platform documents no guarantee here, so the magnitude
	// heuristic stays configurable.
	MicroTimestampThreshold int64 `yaml:"micro_timestamp_threshold"`

	// StateSaveInterval is how often the session artifact is re-persisted
	// while connected.
	StateSaveInterval time.Duration `yaml:"state_save_interval"`

	// EventQueueSize bounds the merged inbound event mailbox.
	EventQueueSize int `yaml:"event_queue_size"`
}

const (
	defaultDedupCapacity           = 256
	defaultStalenessGrace          = 3 * time.Hour
	defaultMicroTimestampThreshold = 1_000_000_000_000
	defaultStateSaveInterval       = 5 * time.Minute
	defaultEventQueueSize          = 256
)

// ApplyDefaults fills zero-valued tunables in place.
func (c *Config) ApplyDefaults() {
	if c.DedupCapacity <= 0 {
		c.DedupCapacity = defaultDedupCapacity
	}
	if c.StalenessGrace <= 0 {
		c.StalenessGrace = defaultStalenessGrace
	}
	if c.MicroTimestampThreshold <= 0 {
		c.MicroTimestampThreshold = defaultMicroTimestampThreshold
	}
	if c.StateSaveInterval <= 0 {
		c.StateSaveInterval = defaultStateSaveInterval
	}
	if c.EventQueueSize <= 0 {
		c.EventQueueSize = defaultEventQueueSize
	}
}
