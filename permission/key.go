package permission

import (
	"errors"
	"fmt"
	"strings"

	"github.com/MrEthical07/authcore/store"
)

// Manage is the wildcard action.
const Manage = store.ManageAction

// ErrInvalidKey is returned for an empty or malformed resource or action.
var ErrInvalidKey = errors.New("permission: invalid key")

// Key is a (resource, action) pair.
type Key struct {
	Resource string
	Action   string
}

// K is shorthand for Key{Resource: resource, Action: action}.
func K(resource, action string) Key {
	return Key{Resource: resource, Action: action}
}

// ParseKey parses "resource:action".
func ParseKey(s string) (Key, error) {
	resource, action, ok := strings.Cut(s, ":")
	k := Key{Resource: resource, Action: action}
	if !ok || k.Validate() != nil {
		return Key{}, fmt.Errorf("%w: %q", ErrInvalidKey, s)
	}
	return k, nil
}

func (k Key) String() string {
	return k.Resource + ":" + k.Action
}

// Validate rejects empty parts, parts longer than 64 bytes and parts containing
// a colon or whitespace.
func (k Key) Validate() error {
	if !validPart(k.Resource) || !validPart(k.Action) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, k.String())
	}
	return nil
}

func validPart(s string) bool {
	if s == "" || len(s) > 64 {
		return false
	}
	return !strings.ContainsAny(s, ": \t\r\n")
}
