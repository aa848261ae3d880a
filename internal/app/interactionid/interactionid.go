// Package interactionid encodes and decodes Global Interaction Ids, the
// custom ids attached to every component the engine sends:
//
//	/<commandId>[/<subPath>]:<sessionId>:<userId|*>:<componentId>
//
// The rendered form never exceeds MaxLength. Encoding fails instead of
// truncating.
package interactionid

import (
	"errors"
	"fmt"
	"strings"
)

// MaxLength is the custom id ceiling enforced by Discord.
const MaxLength = 100

// Wildcard as UserID lets any user trigger the component.
const Wildcard = "*"

var (
	ErrTooLong   = errors.New("interaction id exceeds 100 characters")
	ErrMalformed = errors.New("malformed interaction id")
	ErrInvalid   = errors.New("invalid interaction id field")
)

// ID is the decoded value. SubPath is "/"-joined ("set" or "role/add").
type ID struct {
	CommandID   string
	SubPath     string
	SessionID   string
	UserID      string
	ComponentID string
}

// Anyone reports whether the id carries the wildcard user.
func (id ID) Anyone() bool { return id.UserID == Wildcard }

// Allows reports whether userID may trigger the component.
func (id ID) Allows(userID string) bool { return id.Anyone() || id.UserID == userID }

func (id ID) validate() error {
	switch {
	case id.CommandID == "" || strings.ContainsAny(id.CommandID, "/:"):
		return fmt.Errorf("%w: command id %q", ErrInvalid, id.CommandID)
	case id.SessionID == "" || strings.Contains(id.SessionID, ":"):
		return fmt.Errorf("%w: session id %q", ErrInvalid, id.SessionID)
	case strings.Contains(id.ComponentID, ":"):
		return fmt.Errorf("%w: component id %q", ErrInvalid, id.ComponentID)
	case !validUser(id.UserID):
		return fmt.Errorf("%w: user id %q", ErrInvalid, id.UserID)
	}
	if id.SubPath != "" {
		for _, seg := range strings.Split(id.SubPath, "/") {
			if seg == "" || strings.Contains(seg, ":") {
				return fmt.Errorf("%w: sub path %q", ErrInvalid, id.SubPath)
			}
		}
	}
	return nil
}

func validUser(u string) bool {
	if u == Wildcard {
		return true
	}
	if u == "" {
		return false
	}
	for _, r := range u {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Encode renders id. It returns ErrTooLong when the result would not fit.
func Encode(id ID) (string, error) {
	if err := id.validate(); err != nil {
		return "", err
	}
	var b strings.Builder
	b.Grow(len(id.CommandID) + len(id.SubPath) + len(id.SessionID) + len(id.UserID) + len(id.ComponentID) + 5)
	b.WriteByte('/')
	b.WriteString(id.CommandID)
	if id.SubPath != "" {
		b.WriteByte('/')
		b.WriteString(id.SubPath)
	}
	b.WriteByte(':')
	b.WriteString(id.SessionID)
	b.WriteByte(':')
	b.WriteString(id.UserID)
	b.WriteByte(':')
	b.WriteString(id.ComponentID)
	if b.Len() > MaxLength {
		return "", fmt.Errorf("%w: %d chars for component %q", ErrTooLong, b.Len(), id.ComponentID)
	}
	return b.String(), nil
}

// MustEncode is Encode for ids built from constants; it panics on error.
func MustEncode(id ID) string {
	s, err := Encode(id)
	if err != nil {
		panic(err)
	}
	return s
}

// Parse decodes s. Anything that does not follow the format (ids issued by
// other integrations, hand-written custom ids) yields ErrMalformed.
func Parse(s string) (ID, error) {
	if len(s) > MaxLength || !strings.HasPrefix(s, "/") {
		return ID{}, ErrMalformed
	}
	parts := strings.Split(s[1:], ":")
	if len(parts) != 4 {
		return ID{}, ErrMalformed
	}
	cmd, sub, hasSub := strings.Cut(parts[0], "/")
	if hasSub && sub == "" {
		return ID{}, ErrMalformed
	}
	id := ID{
		CommandID:   cmd,
		SubPath:     sub,
		SessionID:   parts[1],
		UserID:      parts[2],
		ComponentID: parts[3],
	}
	if err := id.validate(); err != nil {
		return ID{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return id, nil
}

// Is reports whether s looks like an id issued by this engine.
func Is(s string) bool {
	_, err := Parse(s)
	return err == nil
}
