package engine

import (
	"fmt"
	"strconv"
	"strings"
)

// TokenKind enumerates the closed set of callback tokens the bot emits.
type TokenKind int

const (
	TokenNone TokenKind = iota
	TokenReview
	TokenCity
	TokenNavNext
	TokenNavPrev
	TokenNavIgnore
	TokenMenu
	TokenChangeCity
)

// Token is a parsed callback payload. ID is set for kinds that carry one
// (TokenReview, TokenCity).
type Token struct {
	Kind TokenKind
	ID   int64
}

// ParseToken decodes a callback data string. Unknown or malformed payloads
// return an error; the transport answers and drops them.
func ParseToken(data string) (Token, error) {
	switch data {
	case "nav:next":
		return Token{Kind: TokenNavNext}, nil
	case "nav:prev":
		return Token{Kind: TokenNavPrev}, nil
	case "nav:ignore":
		return Token{Kind: TokenNavIgnore}, nil
	case "menu":
		return Token{Kind: TokenMenu}, nil
	case "profile:change_city":
		return Token{Kind: TokenChangeCity}, nil
	}

	prefix, idStr, ok := strings.Cut(data, ":")
	if !ok {
		return Token{}, fmt.Errorf("unknown callback token %q", data)
	}

	var kind TokenKind
	switch prefix {
	case "review":
		kind = TokenReview
	case "city":
		kind = TokenCity
	default:
		return Token{}, fmt.Errorf("unknown callback token %q", data)
	}

	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		return Token{}, fmt.Errorf("invalid id in callback token %q", data)
	}
	return Token{Kind: kind, ID: id}, nil
}

// String encodes the token back into callback data.
func (t Token) String() string {
	switch t.Kind {
	case TokenReview:
		return fmt.Sprintf("review:%d", t.ID)
	case TokenCity:
		return fmt.Sprintf("city:%d", t.ID)
	case TokenNavNext:
		return "nav:next"
	case TokenNavPrev:
		return "nav:prev"
	case TokenNavIgnore:
		return "nav:ignore"
	case TokenMenu:
		return "menu"
	case TokenChangeCity:
		return "profile:change_city"
	}
	return ""
}
