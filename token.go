package main

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

// RefKind classifies what shape of card reference a user token turned out to be.
type RefKind int

const (
	RefUnparsed RefKind = iota
	RefOpaqueID
	RefKey
)

// CardRef is the canonical form of a user-supplied card token.
// ID is set for RefOpaqueID; Prefix/Sequence for RefKey.
type CardRef struct {
	Kind     RefKind
	ID       string
	Prefix   string
	Sequence int64
}

var (
	keyRegex      = regexp.MustCompile(`^[A-Za-z]+-\d+$`)
	opaqueIDRegex = regexp.MustCompile(`^[A-Za-z0-9_-]{8,}$`)
	// Query parameter values allow no underscore/hyphen in the opaque shape.
	opaqueParamRegex = regexp.MustCompile(`^[A-Za-z0-9]{8,}$`)
)

// ParseToken classifies a trimmed user token as a tracker URL, an opaque card
// id, or a PREFIX-123 key, in that precedence order. Exactly one
// classification is attempted per token; a token that fits none is
// RefUnparsed and must not reach the tracker. The second return value is a
// scope (board) hint extracted from URL tokens, "" otherwise.
func ParseToken(raw, trackerDomain string) (CardRef, string) {
	token := strings.TrimSpace(raw)
	if token == "" {
		return CardRef{Kind: RefUnparsed}, ""
	}

	if ref, hint, ok := parseTrackerURL(token, trackerDomain); ok {
		return ref, hint
	}

	if opaqueIDRegex.MatchString(token) && !keyRegex.MatchString(token) {
		return CardRef{Kind: RefOpaqueID, ID: token}, ""
	}

	if ref, ok := parseKey(token); ok {
		return ref, ""
	}

	return CardRef{Kind: RefUnparsed}, ""
}

func parseKey(token string) (CardRef, bool) {
	if !keyRegex.MatchString(token) {
		return CardRef{}, false
	}
	dash := strings.LastIndex(token, "-")
	seq, err := strconv.ParseInt(token[dash+1:], 10, 64)
	if err != nil {
		return CardRef{}, false
	}
	return CardRef{
		Kind:     RefKey,
		Prefix:   strings.ToUpper(token[:dash]),
		Sequence: seq,
	}, true
}

func parseTrackerURL(token, trackerDomain string) (CardRef, string, bool) {
	u, err := url.Parse(token)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return CardRef{}, "", false
	}
	host := strings.ToLower(u.Hostname())
	domain := strings.ToLower(trackerDomain)
	if domain == "" || (host != domain && !strings.HasSuffix(host, "."+domain)) {
		return CardRef{}, "", false
	}

	hint := ""
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i, seg := range segments {
		if seg == "organization" && i+2 < len(segments) {
			hint = segments[i+2]
			break
		}
	}

	val := u.Query().Get("card")
	if val == "" {
		return CardRef{Kind: RefUnparsed}, hint, true
	}
	if opaqueParamRegex.MatchString(val) {
		return CardRef{Kind: RefOpaqueID, ID: val}, hint, true
	}
	if ref, ok := parseKey(val); ok {
		return ref, hint, true
	}
	return CardRef{Kind: RefUnparsed}, hint, true
}

// SplitTokens breaks the slash-command argument string into card tokens,
// accepting both whitespace and comma separators.
func SplitTokens(text string) []string {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n' || r == '\r'
	})
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			tokens = append(tokens, f)
		}
	}
	return tokens
}
