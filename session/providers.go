package session

import (
	"context"
	"crypto/tls"
	"net/url"

	"github.com/infodancer/sprucemail/metrics"
	"github.com/infodancer/sprucemail/store"
	"github.com/infodancer/sprucemail/store/maildir"
	"github.com/infodancer/sprucemail/store/mbox"
	"github.com/infodancer/sprucemail/transport/smtp"
)

// MaildirProvider opens maildir:// stores rooted at the URL path,
// one per distinct host+path pair.
type MaildirProvider struct {
	// Collector, if set, receives folder open/close events for every
	// store this provider opens. Nil uses a no-op collector.
	Collector metrics.Collector
}

func (MaildirProvider) Scheme() string           { return "maildir" }
func (MaildirProvider) AuthMechanisms() []string { return nil }

func (MaildirProvider) URLHash(u *url.URL) string { return u.Host + u.Path }

func (MaildirProvider) URLEqual(a, b *url.URL) bool {
	return a.Host == b.Host && a.Path == b.Path
}

func (p MaildirProvider) OpenStore(ctx context.Context, u *url.URL) (store.Store, error) {
	s := maildir.NewStore(u.Path)
	s.SetCollector(p.Collector)
	return s, nil
}

// MboxProvider opens mbox:// stores rooted at the URL path, one per
// distinct host+path pair.
type MboxProvider struct {
	// Collector, if set, receives folder open/close events for every
	// store this provider opens. Nil uses a no-op collector.
	Collector metrics.Collector
}

func (MboxProvider) Scheme() string           { return "mbox" }
func (MboxProvider) AuthMechanisms() []string { return nil }

func (MboxProvider) URLHash(u *url.URL) string { return u.Host + u.Path }

func (MboxProvider) URLEqual(a, b *url.URL) bool {
	return a.Host == b.Host && a.Path == b.Path
}

func (p MboxProvider) OpenStore(ctx context.Context, u *url.URL) (store.Store, error) {
	s := mbox.NewStore(u.Path)
	s.SetCollector(p.Collector)
	return s, nil
}

// smtpTransport adapts *smtp.Client to the session.Transport contract.
type smtpTransport struct {
	*smtp.Client
}

// SMTPProvider dials smtp:// transports, upgrading with STARTTLS when
// the URL's query carries starttls=yes (Dial then fails if the server
// does not advertise STARTTLS). Two URLs share a cached connection only
// when host, port, and user all match, since an SMTP connection is
// stateful (authenticated as a specific user).
type SMTPProvider struct {
	// Collector, if set, receives connection/TLS/auth/command/message
	// events for every transport this provider dials. Nil uses a no-op
	// collector.
	Collector metrics.Collector
}

func (SMTPProvider) Scheme() string { return "smtp" }

func (SMTPProvider) AuthMechanisms() []string {
	return []string{"PLAIN", "LOGIN", "CRAM-MD5"}
}

func (SMTPProvider) URLHash(u *url.URL) string { return u.Host }

func (SMTPProvider) URLEqual(a, b *url.URL) bool {
	return a.Host == b.Host && a.User.String() == b.User.String()
}

func (p SMTPProvider) OpenTransport(ctx context.Context, u *url.URL) (Transport, error) {
	addr := u.Host
	if u.Port() == "" {
		addr = u.Host + ":25"
	}

	cfg := smtp.Config{
		Hostname:  "localhost.localdomain",
		STARTTLS:  u.Query().Get("starttls") == "yes",
		Collector: p.Collector,
	}
	client, err := smtp.Dial(ctx, addr, cfg)
	if err != nil {
		return nil, err
	}
	return smtpTransport{client}, nil
}

// SMTPSProvider is SMTPProvider's implicit-TLS counterpart, registered
// under the smtps scheme and defaulting to port 465.
type SMTPSProvider struct {
	// Collector, if set, receives connection/TLS/auth/command/message
	// events for every transport this provider dials. Nil uses a no-op
	// collector.
	Collector metrics.Collector
}

func (SMTPSProvider) Scheme() string { return "smtps" }

func (SMTPSProvider) AuthMechanisms() []string {
	return []string{"PLAIN", "LOGIN", "CRAM-MD5"}
}

func (SMTPSProvider) URLHash(u *url.URL) string { return u.Host }

func (SMTPSProvider) URLEqual(a, b *url.URL) bool {
	return a.Host == b.Host && a.User.String() == b.User.String()
}

func (p SMTPSProvider) OpenTransport(ctx context.Context, u *url.URL) (Transport, error) {
	host := u.Hostname()
	addr := u.Host
	if u.Port() == "" {
		addr = u.Host + ":465"
	}

	cfg := smtp.Config{
		Hostname:    "localhost.localdomain",
		ImplicitTLS: true,
		TLSConfig:   &tls.Config{ServerName: host},
		Collector:   p.Collector,
	}
	client, err := smtp.Dial(ctx, addr, cfg)
	if err != nil {
		return nil, err
	}
	return smtpTransport{client}, nil
}
