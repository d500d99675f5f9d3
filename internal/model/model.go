// Package model defines the core data structures shared across Jinkies:
// monitored feeds, discovered entries, and the persisted application
// configuration and state.
package model

import "encoding/json"

// Feed is an Atom/RSS feed to monitor.
//
// Credentials are never stored on this struct; they live in the vault,
// keyed by the feed URL.
type Feed struct {
	URL          string `json:"url"`
	Name         string `json:"name"`
	Enabled      bool   `json:"enabled"`
	SoundFile    string `json:"sound_file,omitempty"`
	LastPollTime string `json:"last_poll_time,omitempty"`
}

// UnmarshalJSON decodes a Feed, defaulting enabled to true when the
// field is absent so hand-edited config files behave sensibly.
func (f *Feed) UnmarshalJSON(data []byte) error {
	type alias Feed
	aux := struct {
		Enabled *bool `json:"enabled"`
		*alias
	}{alias: (*alias)(f)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.Enabled == nil {
		f.Enabled = true
	} else {
		f.Enabled = *aux.Enabled
	}
	return nil
}

// FeedEntry is a single entry discovered in a feed.
//
// ID is the entry's native id, falling back to its link. Published is
// passed through verbatim from the feed; the format is not normalized.
type FeedEntry struct {
	FeedURL   string `json:"feed_url"`
	Title     string `json:"title"`
	Link      string `json:"link"`
	Published string `json:"published"`
	ID        string `json:"entry_id"`
	Seen      bool   `json:"seen"`
}

// AppConfig is the persisted application configuration.
type AppConfig struct {
	PollIntervalSecs  int               `json:"poll_interval_secs"`
	Feeds             []Feed            `json:"feeds"`
	SoundMap          map[string]string `json:"sound_map"`
	NotificationStyle string            `json:"notification_style"`
}

// DefaultConfig returns the configuration used when no config file exists.
func DefaultConfig() *AppConfig {
	return &AppConfig{
		PollIntervalSecs: 60,
		Feeds:            []Feed{},
		SoundMap: map[string]string{
			"new_entry": "new_entry.wav",
			"error":     "error.wav",
		},
		NotificationStyle: "native",
	}
}

// FindFeed returns the index of the feed with the given URL, or -1.
func (c *AppConfig) FindFeed(url string) int {
	for i, f := range c.Feeds {
		if f.URL == url {
			return i
		}
	}
	return -1
}

// State is the persisted application state. SeenIDs is the dedup ledger;
// any other top-level fields found in the state file are preserved
// verbatim across a load/save round trip.
type State struct {
	SeenIDs []string
	Extra   map[string]json.RawMessage
}

const seenIDsKey = "seen_ids"

// UnmarshalJSON pulls seen_ids out of the state object and keeps every
// other field as raw JSON.
func (s *State) UnmarshalJSON(data []byte) error {
	raw := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	s.SeenIDs = []string{}
	if ids, ok := raw[seenIDsKey]; ok {
		if err := json.Unmarshal(ids, &s.SeenIDs); err != nil {
			return err
		}
		delete(raw, seenIDsKey)
	}
	s.Extra = raw
	return nil
}

// MarshalJSON merges seen_ids back with the preserved fields.
func (s *State) MarshalJSON() ([]byte, error) {
	raw := map[string]json.RawMessage{}
	for k, v := range s.Extra {
		raw[k] = v
	}
	ids := s.SeenIDs
	if ids == nil {
		ids = []string{}
	}
	encoded, err := json.Marshal(ids)
	if err != nil {
		return nil, err
	}
	raw[seenIDsKey] = encoded
	return json.Marshal(raw)
}
