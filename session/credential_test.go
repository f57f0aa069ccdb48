package session

import (
	"context"
	"testing"
)

func TestCredentialCacheRoundTrip(t *testing.T) {
	calls := 0
	cache, err := NewCredentialCache(func(ctx context.Context, prompt, key string) (string, bool) {
		calls++
		return "s3cret", true
	}, nil)
	if err != nil {
		t.Fatalf("NewCredentialCache: %v", err)
	}

	ctx := context.Background()
	passwd, ok := cache.RequestPasswd(ctx, "enter password", "smtp://mail.example.com", 0)
	if !ok || passwd != "s3cret" {
		t.Fatalf("expected s3cret, got %q ok=%v", passwd, ok)
	}
	if calls != 1 {
		t.Fatalf("expected one prompt call, got %d", calls)
	}

	// Second call should hit the cache, not prompt again.
	passwd, ok = cache.RequestPasswd(ctx, "enter password", "smtp://mail.example.com", 0)
	if !ok || passwd != "s3cret" {
		t.Fatalf("expected cached s3cret, got %q ok=%v", passwd, ok)
	}
	if calls != 1 {
		t.Fatalf("expected cache hit to avoid a second prompt, got %d calls", calls)
	}
}

func TestCredentialCacheReprompt(t *testing.T) {
	responses := []string{"first", "second"}
	i := 0
	cache, err := NewCredentialCache(func(ctx context.Context, prompt, key string) (string, bool) {
		v := responses[i]
		i++
		return v, true
	}, nil)
	if err != nil {
		t.Fatalf("NewCredentialCache: %v", err)
	}

	ctx := context.Background()
	cache.RequestPasswd(ctx, "p", "k", 0)
	passwd, ok := cache.RequestPasswd(ctx, "p", "k", Reprompt)
	if !ok || passwd != "second" {
		t.Fatalf("expected REPROMPT to force a fresh prompt, got %q ok=%v", passwd, ok)
	}
}

func TestCredentialCacheForget(t *testing.T) {
	calls := 0
	cache, err := NewCredentialCache(func(ctx context.Context, prompt, key string) (string, bool) {
		calls++
		return "p", true
	}, nil)
	if err != nil {
		t.Fatalf("NewCredentialCache: %v", err)
	}

	ctx := context.Background()
	cache.RequestPasswd(ctx, "p", "k", 0)
	cache.ForgetPasswd("k")
	cache.RequestPasswd(ctx, "p", "k", 0)
	if calls != 2 {
		t.Fatalf("expected ForgetPasswd to force a re-prompt, got %d calls", calls)
	}
}
