package session

import (
	"context"
	"net/url"
	"testing"

	"github.com/infodancer/sprucemail/store"
	"github.com/infodancer/sprucemail/store/mbox"
)

type fakeStoreProvider struct {
	scheme string
	opens  int
}

func (p *fakeStoreProvider) Scheme() string             { return p.scheme }
func (p *fakeStoreProvider) URLHash(u *url.URL) string   { return u.Host }
func (p *fakeStoreProvider) URLEqual(a, b *url.URL) bool { return a.Host == b.Host && a.User.String() == b.User.String() }
func (p *fakeStoreProvider) AuthMechanisms() []string    { return []string{"PLAIN"} }
func (p *fakeStoreProvider) OpenStore(ctx context.Context, u *url.URL) (store.Store, error) {
	p.opens++
	return mbox.NewStore(u.Path), nil
}

func TestRegisterStorePanicsOnDuplicate(t *testing.T) {
	r := NewRegistry()
	r.RegisterStore(&fakeStoreProvider{scheme: "maildir"})

	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic on duplicate registration")
		}
	}()
	r.RegisterStore(&fakeStoreProvider{scheme: "maildir"})
}

func TestRegisterStorePanicsOnEmptyScheme(t *testing.T) {
	r := NewRegistry()
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic on empty scheme")
		}
	}()
	r.RegisterStore(&fakeStoreProvider{scheme: ""})
}

func TestGetStoreCachesByURLEquality(t *testing.T) {
	r := NewRegistry()
	p := &fakeStoreProvider{scheme: "maildir"}
	r.RegisterStore(p)

	u1, _ := url.Parse("maildir://alice@mail.example.com/home")
	u2, _ := url.Parse("maildir://alice@mail.example.com/other")

	ctx := context.Background()
	if _, err := r.GetStore(ctx, u1); err != nil {
		t.Fatalf("GetStore 1: %v", err)
	}
	if _, err := r.GetStore(ctx, u2); err != nil {
		t.Fatalf("GetStore 2: %v", err)
	}
	if p.opens != 1 {
		t.Fatalf("expected equal-host URLs to share one opened store, got %d opens", p.opens)
	}
}

func TestGetStoreUnregisteredScheme(t *testing.T) {
	r := NewRegistry()
	u, _ := url.Parse("mbox://mail.example.com/")
	if _, err := r.GetStore(context.Background(), u); err == nil {
		t.Fatalf("expected error for unregistered scheme")
	}
}
