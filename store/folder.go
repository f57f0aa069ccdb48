// Package store defines the folder and store contracts shared by the
// Maildir and mbox backends, matching the folder abstraction described
// in the design (open/close/list/get/append/expunge/search).
package store

import (
	"context"
	"io"

	"github.com/infodancer/sprucemail/summary"
)

// Kind is a bitset describing what a folder may contain.
type Kind uint8

const (
	// CanHoldMessages marks a folder that can contain messages.
	CanHoldMessages Kind = 1 << iota
	// CanHoldFolders marks a folder that can contain subfolders.
	CanHoldFolders
	// CanHoldAnything is both bits set.
	CanHoldAnything = CanHoldMessages | CanHoldFolders
)

// UIDSet is an optional restriction on which UIDs an operation applies
// to. A nil UIDSet means "all messages".
type UIDSet map[string]struct{}

// Contains reports whether set contains uid. A nil set always returns true.
func (set UIDSet) Contains(uid string) bool {
	if set == nil {
		return true
	}
	_, ok := set[uid]
	return ok
}

// NewUIDSet builds a UIDSet from a list of UIDs.
func NewUIDSet(uids ...string) UIDSet {
	set := make(UIDSet, len(uids))
	for _, u := range uids {
		set[u] = struct{}{}
	}
	return set
}

// RenameListener is notified when a folder's full name changes, so
// that cached subfolders can recompute their own path.
type RenameListener func(oldFullName, newFullName string)

// Folder is the common contract every local-store folder implements.
type Folder interface {
	// FullName returns the folder's slash-separated path from the store root.
	FullName() string

	// Kind reports what the folder may contain.
	Kind() Kind

	// Open prepares the folder for use, loading or creating its summary.
	Open(ctx context.Context) error

	// Close releases resources. If expunge is true, deleted messages
	// are purged before the summary is flushed.
	Close(ctx context.Context, expunge bool) error

	// Create creates the on-disk structure for a folder of the given kind.
	Create(ctx context.Context, kind Kind) error

	// Delete removes the folder and its backing storage.
	Delete(ctx context.Context) error

	// Rename moves the folder (and, recursively, its subfolders) to a
	// new full name, then fires its RenameListeners.
	Rename(ctx context.Context, newFullName string) error

	// NewName performs the in-memory retargeting triggered by a parent's
	// rename: it recomputes this folder's own full name given the
	// parent's new full name, without touching backing storage.
	NewName(parentFullName, name string)

	// OnRenamed registers a listener invoked after a successful Rename.
	OnRenamed(l RenameListener)

	// Expunge permanently removes messages flagged DELETED, restricted
	// to uids if non-nil.
	Expunge(ctx context.Context, uids UIDSet) error

	// List returns the names of subfolders matching glob.
	List(ctx context.Context, glob string) ([]string, error)

	// GetMessage returns the raw message body for uid.
	GetMessage(ctx context.Context, uid string) (io.ReadCloser, error)

	// AppendMessage appends a message with the given initial flags and
	// returns its assigned UID.
	AppendMessage(ctx context.Context, msg io.Reader, flags summary.Flag) (string, error)

	// Search evaluates a search expression over the folder's summary,
	// restricted to uids if non-nil, returning matching UIDs.
	Search(ctx context.Context, uids UIDSet, expression string) ([]string, error)

	// GetUIDs returns all UIDs currently in the folder's summary.
	GetUIDs(ctx context.Context) ([]string, error)

	// SetMessageFlags updates uid's flags: (flags &^ mask) | (set & mask).
	SetMessageFlags(ctx context.Context, uid string, mask, set summary.Flag) error

	// Summary exposes the folder's cached message index, e.g. for the
	// search engine's folder predicates.
	Summary() *summary.Summary
}

// Store produces folders for one URL-identified service. Folders are
// created on first reference and cached by full name.
type Store interface {
	// Folder returns the (possibly newly created in-memory) folder for
	// the given full name, caching it for subsequent lookups.
	Folder(fullName string) (Folder, error)

	// Close releases any resources held by the store (open descriptors,
	// file locks).
	Close() error
}
