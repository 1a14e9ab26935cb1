// Query messages and the whitespace tag, the two plaintext advertising
// mechanisms a Host may send before a session is encrypted, per §4.6.

package wire

import "strings"

const (
	whitespaceTagBase = "\x20\x09\x20\x20\x09\x09\x09\x09\x20\x09\x20\x09\x20\x09\x20\x20"
	whitespaceTagV2   = "\x20\x20\x09\x09\x20\x20\x09\x20"
	whitespaceTagV3   = "\x20\x20\x09\x09\x20\x20\x09\x09"
)

// BuildQueryMessage returns a query message offering the given protocol
// versions, e.g. "?OTRv3?" for version 3 only.
func BuildQueryMessage(versions []int) string {
	var b strings.Builder
	b.WriteString("?OTRv")
	for _, v := range versions {
		if v == VersionThree {
			b.WriteByte('3')
		}
		if v == VersionTwo {
			b.WriteByte('2')
		}
	}
	b.WriteByte('?')
	return b.String()
}

// BuildWhitespaceTag appends the whitespace tag advertising the given
// versions to a plaintext message body.
func BuildWhitespaceTag(plaintext string, versions []int) string {
	tag := whitespaceTagBase
	for _, v := range versions {
		if v == VersionTwo {
			tag += whitespaceTagV2
		}
		if v == VersionThree {
			tag += whitespaceTagV3
		}
	}
	return plaintext + tag
}

// ParseQueryVersions extracts the offered protocol versions from a
// "?OTRv..?" query message, or from an embedded whitespace tag. It
// recognizes but never offers version 1, per §9.
func ParseQueryVersions(msg string) (versions []int, sawV1 bool) {
	if idx := strings.Index(msg, whitespaceTagBase); idx >= 0 {
		tail := msg[idx+len(whitespaceTagBase):]
		for len(tail) >= 8 {
			switch tail[:8] {
			case whitespaceTagV2:
				versions = append(versions, VersionTwo)
			case whitespaceTagV3:
				versions = append(versions, VersionThree)
			default:
				return versions, sawV1
			}
			tail = tail[8:]
		}
		return versions, sawV1
	}

	idx := strings.Index(msg, "?OTRv")
	if idx < 0 {
		if strings.HasPrefix(msg, QueryPrefix) && strings.Contains(msg, "?") {
			return nil, true
		}
		return nil, false
	}
	rest := msg[idx+len("?OTRv"):]
	end := strings.IndexByte(rest, '?')
	if end < 0 {
		return nil, false
	}
	for _, c := range rest[:end] {
		switch c {
		case '2':
			versions = append(versions, VersionTwo)
		case '3':
			versions = append(versions, VersionThree)
		case '1':
			sawV1 = true
		}
	}
	return versions, sawV1
}

// StripWhitespaceTag removes an embedded whitespace tag (and every
// version octet-pair following it) from plaintext, so the steganographic
// marker never reaches the application, per §4.6.
func StripWhitespaceTag(msg string) string {
	idx := strings.Index(msg, whitespaceTagBase)
	if idx < 0 {
		return msg
	}
	tail := msg[idx+len(whitespaceTagBase):]
	for len(tail) >= 8 {
		switch tail[:8] {
		case whitespaceTagV2, whitespaceTagV3:
			tail = tail[8:]
		default:
			return msg[:idx] + tail
		}
	}
	return msg[:idx] + tail
}

// IsQueryMessage reports whether msg looks like an OTR query message
// (a bare "?OTR?" v1-style offer also counts, recognized only to be
// declined).
func IsQueryMessage(msg string) bool {
	return strings.HasPrefix(msg, QueryPrefix)
}
