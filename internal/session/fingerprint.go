package session

import "strings"

// Hijack detection compares the coarse client signature of two fingerprints:
// browser family crossed with operating-system family, extracted from the
// user-agent string by a small fixed classification table. This is a
// heuristic, not a cryptographic guarantee; it catches a stolen token being
// replayed from a different kind of client but will not catch an attacker
// who replicates the victim's user agent.

// Browser families.
const (
	browserChrome  = "chrome"
	browserFirefox = "firefox"
	browserSafari  = "safari"
	browserEdge    = "edge"
	browserUnknown = "unknown"
)

// Operating-system families.
const (
	osWindows = "windows"
	osMacOS   = "macos"
	osLinux   = "linux"
	osAndroid = "android"
	osIOS     = "ios"
	osUnknown = "unknown"
)

// IsHijack reports whether the current fingerprint looks like a different
// client than the one the session was issued to.
//
// An IP-address change alone never flags a hijack: mobile and proxy IP
// churn is routine. The caller is expected to log IP-only changes as a
// medium-risk observation instead. A missing or empty user agent on either
// side is inconclusive and does not block.
func IsHijack(stored, current Fingerprint) bool {
	if stored.UserAgent == "" || stored.UserAgent == "unknown" {
		return false
	}
	if current.UserAgent == "" || current.UserAgent == "unknown" {
		return false
	}

	return browserFamily(stored.UserAgent) != browserFamily(current.UserAgent) ||
		osFamily(stored.UserAgent) != osFamily(current.UserAgent)
}

// browserFamily classifies a user-agent string into a coarse browser family.
// Order matters: Edge and Chrome UAs both contain "chrome", and Chrome UAs
// contain "safari".
func browserFamily(userAgent string) string {
	ua := strings.ToLower(userAgent)
	switch {
	case strings.Contains(ua, "edg"):
		return browserEdge
	case strings.Contains(ua, "chrome") || strings.Contains(ua, "chromium"):
		return browserChrome
	case strings.Contains(ua, "firefox"):
		return browserFirefox
	case strings.Contains(ua, "safari"):
		return browserSafari
	default:
		return browserUnknown
	}
}

// osFamily classifies a user-agent string into a coarse OS family.
// iOS is checked before macOS because iPad UAs can mention "Mac OS X".
func osFamily(userAgent string) string {
	ua := strings.ToLower(userAgent)
	switch {
	case strings.Contains(ua, "iphone") || strings.Contains(ua, "ipad") || strings.Contains(ua, "ios"):
		return osIOS
	case strings.Contains(ua, "android"):
		return osAndroid
	case strings.Contains(ua, "windows"):
		return osWindows
	case strings.Contains(ua, "mac os") || strings.Contains(ua, "macos") || strings.Contains(ua, "macintosh"):
		return osMacOS
	case strings.Contains(ua, "linux") || strings.Contains(ua, "x11"):
		return osLinux
	default:
		return osUnknown
	}
}
