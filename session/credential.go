package session

import (
	"context"
	"crypto/rand"
	"sync"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/nacl/secretbox"
)

const (
	credentialSaltSize  = 16
	credentialNonceSize = 24

	credentialArgonTime    = 1
	credentialArgonMemory  = 64 * 1024
	credentialArgonThreads = 4
	credentialKeyLen       = 32
)

// cachedSecret is a secretbox-sealed passwd value: the nonce travels
// alongside the ciphertext since secretbox requires a fresh one per
// seal but needs no secrecy itself.
type cachedSecret struct {
	nonce      [credentialNonceSize]byte
	ciphertext []byte
}

// CredentialCache implements Session by prompting via a user-supplied
// callback and caching the resulting passwd encrypted at rest in
// memory: an argon2id-stretched key wraps each cached secret with
// nacl/secretbox, so a heap dump doesn't hand over plaintext
// passwords sitting in a map.
type CredentialCache struct {
	prompt func(ctx context.Context, prompt, key string) (string, bool)
	alert  func(ctx context.Context, text string)

	key [credentialKeyLen]byte

	mu    sync.Mutex
	cache map[string]cachedSecret
}

// NewCredentialCache builds a CredentialCache whose prompt callback is
// invoked whenever RequestPasswd needs a fresh secret (no cache entry,
// or REPROMPT was requested). alert may be nil to discard AlertUser
// calls.
func NewCredentialCache(prompt func(ctx context.Context, prompt, key string) (string, bool), alert func(ctx context.Context, text string)) (*CredentialCache, error) {
	salt := make([]byte, credentialSaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	passphrase := make([]byte, 32)
	if _, err := rand.Read(passphrase); err != nil {
		return nil, err
	}

	derived := argon2.IDKey(passphrase, salt, credentialArgonTime, credentialArgonMemory, credentialArgonThreads, credentialKeyLen)
	c := &CredentialCache{prompt: prompt, alert: alert, cache: make(map[string]cachedSecret)}
	copy(c.key[:], derived)
	return c, nil
}

// AlertUser forwards to the configured alert callback, if any.
func (c *CredentialCache) AlertUser(ctx context.Context, text string) {
	if c.alert != nil {
		c.alert(ctx, text)
	}
}

// RequestPasswd returns the cached secret for key unless REPROMPT was
// requested or nothing is cached, in which case it calls the prompt
// callback and caches a successful result.
func (c *CredentialCache) RequestPasswd(ctx context.Context, prompt, key string, flags PasswdFlags) (string, bool) {
	if flags&Reprompt != 0 {
		c.ForgetPasswd(key)
	} else if passwd, ok := c.lookup(key); ok {
		return passwd, true
	}

	if c.prompt == nil {
		return "", false
	}
	passwd, ok := c.prompt(ctx, prompt, key)
	if !ok {
		return "", false
	}
	c.store(key, passwd)
	return passwd, true
}

// ForgetPasswd discards the cached secret for key, if any.
func (c *CredentialCache) ForgetPasswd(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.cache, key)
}

func (c *CredentialCache) lookup(key string) (string, bool) {
	c.mu.Lock()
	sealed, ok := c.cache[key]
	c.mu.Unlock()
	if !ok {
		return "", false
	}

	plaintext, ok := secretbox.Open(nil, sealed.ciphertext, &sealed.nonce, &c.key)
	if !ok {
		return "", false
	}
	return string(plaintext), true
}

func (c *CredentialCache) store(key, passwd string) {
	var sealed cachedSecret
	if _, err := rand.Read(sealed.nonce[:]); err != nil {
		return
	}
	sealed.ciphertext = secretbox.Seal(nil, []byte(passwd), &sealed.nonce, &c.key)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache[key] = sealed
}
