package providers

import (
	"crypto/md5"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net"
	"strings"
)

// secureEquals compares two strings in constant time. Plain equality on
// secrets leaks match length through timing; every secret and hash
// comparison in this package goes through here.
func secureEquals(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// hashEquals compares two hex digests case-insensitively in constant
// time. Networks are inconsistent about digest casing.
func hashEquals(got, want string) bool {
	return secureEquals(strings.ToLower(got), strings.ToLower(want))
}

// md5Hex returns the lowercase hex MD5 digest of s. MD5 is what the CPX
// postback contract specifies; it authenticates the message against a
// shared secret here, it is not used for anything collision-sensitive.
func md5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

// sha256Hex returns the lowercase hex SHA-256 digest of s
func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// NormalizeIP canonicalizes a caller address: strips an IPv4-in-IPv6
// prefix (::ffff:10.0.0.1 -> 10.0.0.1) and renders the parsed form.
// Unparseable input is returned trimmed as-is so it still fails the
// allowlist instead of panicking.
func NormalizeIP(addr string) string {
	addr = strings.TrimSpace(addr)
	ip := net.ParseIP(addr)
	if ip == nil {
		return addr
	}
	if v4 := ip.To4(); v4 != nil {
		return v4.String()
	}
	return ip.String()
}

// ipAllowed reports whether the caller's normalized address is in the
// configured allowlist. An empty allowlist never matches; callers decide
// whether that means skip or reject.
func ipAllowed(callerIP string, allow []string) bool {
	caller := NormalizeIP(callerIP)
	for _, a := range allow {
		if NormalizeIP(a) == caller {
			return true
		}
	}
	return false
}
