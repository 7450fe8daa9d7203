package fastboard

import (
	"strings"
)

// Pure reply-matching helpers. FAST replies are free-form text, often
// partial or prefixed with stale fragments, so everything here works on
// substrings rather than fixed framing.

// ParseProtocol extracts the bus protocol from an identity reply: the
// alphabetic token following "ID:", matched case-insensitively against
// the two known bus names.
func ParseProtocol(resp string) (Protocol, bool) {
	_, after, found := strings.Cut(resp, "ID:")
	if !found {
		return 0, false
	}
	after = strings.TrimSpace(after)
	end := 0
	for end < len(after) && isAlpha(after[end]) {
		end++
	}
	switch strings.ToUpper(after[:end]) {
	case "NET":
		return NET, true
	case "EXP":
		return EXP, true
	}
	return 0, false
}

// ParseID splits an "ID:{Protocol} {BoardName} {Version}" reply into its
// three tokens. Commas after the protocol token are tolerated
// (e.g. "ID:EXP, FP-EXP-0091 v0.48").
func ParseID(resp string) (protocol, board, version string, ok bool) {
	_, after, found := strings.Cut(resp, "ID:")
	if !found {
		return "", "", "", false
	}
	fields := strings.Fields(strings.ReplaceAll(after, ",", " "))
	if len(fields) < 3 {
		return "", "", "", false
	}
	return fields[0], fields[1], fields[2], true
}

// ParseNodeRecord extracts a node record from an NN: enumeration reply.
// Replies may contain stale fragments of earlier NN: answers, so only
// the last occurrence counts. At least three comma-separated fields are
// required (id, name, firmware); anything after is kept in order.
func ParseNodeRecord(resp string) (NodeInfo, bool) {
	idx := strings.LastIndex(resp, "NN:")
	if idx < 0 {
		return NodeInfo{}, false
	}
	line := resp[idx+3:]
	if end := strings.IndexAny(line, "\r\n"); end >= 0 {
		line = line[:end]
	}
	parts := strings.Split(strings.TrimSpace(line), ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	if len(parts) < 3 {
		return NodeInfo{}, false
	}
	info := NodeInfo{
		ID:       parts[0],
		Name:     parts[1],
		Firmware: parts[2],
	}
	if len(parts) > 3 {
		info.Extra = parts[3:]
	}
	return info, true
}

// trimVersionTail strips trailing characters that are neither digits nor
// dots from a reported version token (CR/LF leftovers, annotations).
func trimVersionTail(v string) string {
	end := len(v)
	for end > 0 {
		c := v[end-1]
		if c >= '0' && c <= '9' || c == '.' {
			break
		}
		end--
	}
	return v[:end]
}

// trimMajorZeros drops leading zeros from the major part of a version
// token, so a board reporting "02.28" compares equal to "2.28".
func trimMajorZeros(v string) string {
	major, rest, found := strings.Cut(v, ".")
	if !found {
		return zeroTrimmed(v)
	}
	return zeroTrimmed(major) + "." + rest
}

func zeroTrimmed(s string) string {
	t := strings.TrimLeft(s, "0")
	if t == "" {
		return "0"
	}
	return t
}

func isAlpha(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}
