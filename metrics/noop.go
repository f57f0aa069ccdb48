package metrics

// NoopCollector is a no-op implementation of the Collector interface.
// All methods are empty stubs that do nothing.
type NoopCollector struct{}

// FolderOpened is a no-op.
func (n *NoopCollector) FolderOpened(kind string) {}

// FolderClosed is a no-op.
func (n *NoopCollector) FolderClosed(kind string) {}

// CacheHit is a no-op.
func (n *NoopCollector) CacheHit() {}

// CacheMiss is a no-op.
func (n *NoopCollector) CacheMiss() {}

// CacheExpired is a no-op.
func (n *NoopCollector) CacheExpired(count int) {}

// SMTPConnectionOpened is a no-op.
func (n *NoopCollector) SMTPConnectionOpened() {}

// SMTPConnectionClosed is a no-op.
func (n *NoopCollector) SMTPConnectionClosed() {}

// SMTPTLSEstablished is a no-op.
func (n *NoopCollector) SMTPTLSEstablished() {}

// SMTPAuthAttempt is a no-op.
func (n *NoopCollector) SMTPAuthAttempt(mechanism string, success bool) {}

// SMTPCommandSent is a no-op.
func (n *NoopCollector) SMTPCommandSent(command string) {}

// SMTPMessageSent is a no-op.
func (n *NoopCollector) SMTPMessageSent(sizeBytes int64) {}
