package backup

import (
	"fmt"
	"strings"

	"github.com/nbd-wtf/go-nostr/nip19"
)

// DecodeAuthor converts a user-supplied pubkey, either bech32 "npub1..." or
// 64-char hex, to its raw hex form. Anything else is a fatal input error.
func DecodeAuthor(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("pubkey is required")
	}

	if strings.HasPrefix(s, "npub1") {
		prefix, value, err := nip19.Decode(s)
		if err != nil {
			return "", fmt.Errorf("invalid npub %q: %w", s, err)
		}
		if prefix != "npub" {
			return "", fmt.Errorf("expected an npub, got %s", prefix)
		}
		pk, ok := value.(string)
		if !ok {
			return "", fmt.Errorf("unexpected npub payload type %T", value)
		}
		return pk, nil
	}

	if isHexPubkey(s) {
		return strings.ToLower(s), nil
	}
	return "", fmt.Errorf("invalid pubkey %q: want npub1... or 64 hex chars", s)
}

func isHexPubkey(s string) bool {
	if len(s) != 64 {
		return false
	}
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}
