package model

import "time"

// Hash tree sections exposed by the external system's hash status.
var HashSections = []string{"commands", "config", "structure", "data", "docs"}

// HashTree is the self-describing hash summary of the external dataset.
// Root summarizes everything; each section summarizes its children.
type HashTree struct {
	Root     string               `json:"root"`
	Sections map[string]*HashNode `json:"sections"`
}

// HashNode is a section hash with per-record child hashes.
type HashNode struct {
	Hash     string            `json:"hash"`
	Children map[string]string `json:"children"`
}

// HashCacheEntry maps an external resource path to its last advertised
// hash, the comparison key for future syncs.
type HashCacheEntry struct {
	Path      string    `json:"path" firestore:"path"`
	Hash      string    `json:"hash" firestore:"hash"`
	FetchedAt time.Time `json:"fetched_at" firestore:"fetched_at"`
}

// SyncReport summarizes one cache-sync pass against the external system.
type SyncReport struct {
	RootChanged     bool
	ChangedSections []string
	ChangedRecords  []string
	Fetches         int
}
