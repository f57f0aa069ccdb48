package smtp

// statusTextTable is the rfc821/rfc2554 numeric-code-to-text table,
// lifted from the original transport's smtp_strerror switch.
var statusTextTable = map[int]string{
	211: "system status, or system help reply",
	214: "help message",
	220: "service ready",
	221: "service closing transmission channel",
	250: "requested mail action okay, completed",
	251: "user not local; will forward",
	354: "start mail input; end with <CRLF>.<CRLF>",
	421: "service not available, closing transmission channel",
	432: "a password transition is needed",
	450: "requested mail action not taken: mailbox unavailable",
	451: "requested action aborted: error in processing",
	452: "requested action not taken: insufficient system storage",
	454: "temporary authentication failure",
	500: "syntax error, command unrecognized",
	501: "syntax error in parameters or arguments",
	502: "command not implemented",
	504: "command parameter not implemented",
	530: "authentication required",
	534: "authentication mechanism is too weak",
	538: "encryption required for requested authentication mechanism",
	550: "requested action not taken: mailbox unavailable",
	551: "user not local; please try forwarding",
	552: "requested mail action aborted: exceeded storage allocation",
	553: "requested action not taken: mailbox name not allowed",
	554: "transaction failed",
}

// codeText returns the stock rfc821 description for code, or
// "unknown" if the table has no entry.
func codeText(code int) string {
	if text, ok := statusTextTable[code]; ok {
		return text
	}
	return "unknown"
}
