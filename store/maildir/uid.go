package maildir

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	uidMaxAttempts = 5
	uidRetryDelay  = time.Second
)

var cachedHostname = getHostname()

func getHostname() string {
	h, err := os.Hostname()
	if err != nil {
		h = "localhost"
	}
	return sanitizeHostname(h)
}

// sanitizeHostname removes characters that would corrupt a filename or
// the ':'-delimited info suffix.
func sanitizeHostname(hostname string) string {
	hostname = strings.ReplaceAll(hostname, "/", "_")
	hostname = strings.ReplaceAll(hostname, ":", "_")
	hostname = strings.ReplaceAll(hostname, "\x00", "")
	return hostname
}

// newUID computes a delivery UID once, as "<seconds>.<pid>.<hostname>",
// retrying up to uidMaxAttempts times with a 1 second sleep if the
// candidate tmp/ path already exists or a message with that uid already
// sits in new/ or cur/ (clock collisions between two deliveries in the
// same second).
func newUID(tmpDir string) (string, error) {
	pid := os.Getpid()
	var lastErr error
	for attempt := 0; attempt < uidMaxAttempts; attempt++ {
		uid := fmt.Sprintf("%d.%d.%s", time.Now().Unix(), pid, cachedHostname)
		candidate := tmpDir + string(os.PathSeparator) + uid
		if _, err := os.Lstat(candidate); os.IsNotExist(err) {
			if !uidDelivered(filepath.Dir(tmpDir), uid) {
				return uid, nil
			}
		} else if err != nil {
			lastErr = err
		}
		time.Sleep(uidRetryDelay)
	}
	if lastErr != nil {
		return "", lastErr
	}
	return "", fmt.Errorf("maildir: could not allocate a unique uid in %s after %d attempts", tmpDir, uidMaxAttempts)
}

// uidDelivered reports whether a message named uid already sits in
// folderPath's new/ or cur/ directory.
func uidDelivered(folderPath, uid string) bool {
	for _, sub := range []string{"new", "cur"} {
		entries, _ := os.ReadDir(filepath.Join(folderPath, sub))
		for _, e := range entries {
			if uidKey(e.Name()) == uid {
				return true
			}
		}
	}
	return false
}
