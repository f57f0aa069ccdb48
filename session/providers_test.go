package session

import (
	"net/url"
	"testing"
)

func TestRegisterBuiltinProviders(t *testing.T) {
	r := NewRegistry()
	r.RegisterStore(MaildirProvider{})
	r.RegisterStore(MboxProvider{})
	r.RegisterTransport(SMTPProvider{})
	r.RegisterTransport(SMTPSProvider{})

	schemes := r.RegisteredSchemes()
	want := []string{"maildir", "mbox", "smtp", "smtps"}
	if len(schemes) != len(want) {
		t.Fatalf("RegisteredSchemes: got %v, want %v", schemes, want)
	}
	for i, s := range want {
		if schemes[i] != s {
			t.Fatalf("RegisteredSchemes[%d]: got %q, want %q", i, schemes[i], s)
		}
	}

	if mechs := r.AuthMechanismsFor("smtp"); len(mechs) == 0 {
		t.Fatalf("expected smtp to advertise auth mechanisms")
	}
	if mechs := r.AuthMechanismsFor("maildir"); mechs != nil {
		t.Fatalf("expected maildir to advertise no auth mechanisms, got %v", mechs)
	}
}

func TestMaildirProviderURLEquality(t *testing.T) {
	p := MaildirProvider{}
	a, _ := url.Parse("maildir://localhost/var/mail/alice")
	b, _ := url.Parse("maildir://localhost/var/mail/alice")
	c, _ := url.Parse("maildir://localhost/var/mail/bob")

	if p.URLHash(a) != p.URLHash(b) {
		t.Fatalf("expected identical URLs to hash equal")
	}
	if !p.URLEqual(a, b) {
		t.Fatalf("expected identical URLs to compare equal")
	}
	if p.URLEqual(a, c) {
		t.Fatalf("expected distinct paths to compare unequal")
	}
}
