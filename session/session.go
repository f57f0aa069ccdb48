package session

import "context"

// PasswdFlags are the request_passwd flags: Reprompt tells the
// session to discard any cached secret for key before prompting,
// Static tells it the mechanism never renegotiates so a prompt
// failure should not trigger a retry loop.
type PasswdFlags uint8

const (
	Reprompt PasswdFlags = 1 << iota
	Static
)

// Session is the virtual interface the rest of the system uses to
// talk to whatever is driving it (an interactive terminal, a daemon
// config file, a test double): alert the user, and get/forget a
// cached credential.
type Session interface {
	AlertUser(ctx context.Context, text string)
	RequestPasswd(ctx context.Context, prompt, key string, flags PasswdFlags) (passwd string, ok bool)
	ForgetPasswd(key string)
}
