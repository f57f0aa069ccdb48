// Package metrics provides interfaces and implementations for collecting
// client-side metrics for the store and transport packages: folder
// lifecycle, stream cache effectiveness, and SMTP transport activity.
package metrics

// Collector defines the interface for recording sprucemail metrics.
type Collector interface {
	// Folder lifecycle
	FolderOpened(kind string)
	FolderClosed(kind string)

	// Stream cache
	CacheHit()
	CacheMiss()
	CacheExpired(count int)

	// SMTP transport
	SMTPConnectionOpened()
	SMTPConnectionClosed()
	SMTPTLSEstablished()
	SMTPAuthAttempt(mechanism string, success bool)
	SMTPCommandSent(command string)
	SMTPMessageSent(sizeBytes int64)
}
