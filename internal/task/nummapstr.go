// Package task defines the in-memory task record the daemon schedules
// against: run-as credentials, execution policy, mail policy, and the
// owned event stream that drives its periodic timer.
package task

import (
	"fmt"
	"os/user"
	"strconv"
)

// NumMapStr is a tagged union of a numeric id or a name string, the form
// X-ECHS-SETUID/SETGID and the task owner arrive in over the wire. Either
// Num is set (Named is false) or Name is set (Named is true).
type NumMapStr struct {
	Named bool
	Num   int
	Name  string
}

// FromNum returns a numeric NumMapStr.
func FromNum(n int) NumMapStr { return NumMapStr{Num: n} }

// FromName returns a name-form NumMapStr.
func FromName(s string) NumMapStr { return NumMapStr{Named: true, Name: s} }

// ParseNumMapStr interprets s as a NumMapStr: a string of decimal digits
// (optionally signed) is numeric, anything else is a name.
func ParseNumMapStr(s string) NumMapStr {
	if n, err := strconv.Atoi(s); err == nil {
		return FromNum(n)
	}
	return FromName(s)
}

func (n NumMapStr) String() string {
	if n.Named {
		return n.Name
	}
	return strconv.Itoa(n.Num)
}

// ResolveUID resolves n to a numeric uid via the password database when
// named, or returns Num directly when numeric.
func (n NumMapStr) ResolveUID() (int, error) {
	if !n.Named {
		return n.Num, nil
	}
	u, err := user.Lookup(n.Name)
	if err != nil {
		return 0, fmt.Errorf("look up user %q: %w", n.Name, err)
	}
	uid, err := strconv.Atoi(u.Uid)
	if err != nil {
		return 0, fmt.Errorf("parse uid for %q: %w", n.Name, err)
	}
	return uid, nil
}

// ResolveGID resolves n to a numeric gid via the group database when
// named, or returns Num directly when numeric.
func (n NumMapStr) ResolveGID() (int, error) {
	if !n.Named {
		return n.Num, nil
	}
	g, err := user.LookupGroup(n.Name)
	if err != nil {
		return 0, fmt.Errorf("look up group %q: %w", n.Name, err)
	}
	gid, err := strconv.Atoi(g.Gid)
	if err != nil {
		return 0, fmt.Errorf("parse gid for %q: %w", n.Name, err)
	}
	return gid, nil
}

// Equal reports whether n and other resolve to the same uid-space
// identity: equal numerically if either is numeric, else equal names.
func (n NumMapStr) Equal(other NumMapStr) bool {
	if !n.Named && !other.Named {
		return n.Num == other.Num
	}
	if n.Named && other.Named {
		return n.Name == other.Name
	}
	na, err1 := n.ResolveUID()
	nb, err2 := other.ResolveUID()
	return err1 == nil && err2 == nil && na == nb
}
