// Package protection decides which containers belong to the platform itself and
// refuses destructive verbs on them.
package protection

import (
	"errors"
	"fmt"
	"strings"

	"github.com/artpar/docklite/internal/core/runtime"
)

// DefaultPrefix marks the platform's own containers (proxy, backend, database).
const DefaultPrefix = "docklite-"

// ErrProtected is matched by every *Violation.
var ErrProtected = errors.New("container is protected")

// Violation is returned when a destructive verb targets a protected container.
type Violation struct {
	Name    string       // the targeted container
	Matched string       // the protected identity it matched
	Verb    runtime.Verb // the blocked verb
}

func (v *Violation) Error() string {
	return fmt.Sprintf("cannot %s %s: system container (matches protected %q)", v.Verb, v.Name, v.Matched)
}

func (v *Violation) Unwrap() error {
	return ErrProtected
}

// Guard classifies container names against a fixed set of protected identities.
// Each identity matches a name exactly or as a prefix. The zero value protects
// nothing.
type Guard struct {
	identities []string
}

// NewGuard returns a Guard for the given identities. With none, DefaultPrefix is used.
func NewGuard(identities ...string) *Guard {
	g := &Guard{}
	for _, id := range identities {
		if id = strings.TrimSpace(id); id != "" {
			g.identities = append(g.identities, id)
		}
	}
	if len(g.identities) == 0 {
		g.identities = []string{DefaultPrefix}
	}
	return g
}

// Identities returns the protected identities.
func (g *Guard) Identities() []string {
	return append([]string(nil), g.identities...)
}

// Match returns the protected identity name matches, if any. A leading "/" as
// printed by inspect is ignored.
func (g *Guard) Match(name string) (string, bool) {
	if g == nil {
		return "", false
	}
	name = strings.TrimPrefix(name, "/")
	for _, id := range g.identities {
		if name == id || strings.HasPrefix(name, id) {
			return id, true
		}
	}
	return "", false
}

// IsProtected reports whether name is one of the platform's containers.
func (g *Guard) IsProtected(name string) bool {
	_, ok := g.Match(name)
	return ok
}

// Check returns a *Violation when verb is destructive and name is protected.
// Start and every read-only verb always pass.
func (g *Guard) Check(name string, verb runtime.Verb) error {
	if !verb.Destructive() {
		return nil
	}
	matched, ok := g.Match(name)
	if !ok {
		return nil
	}
	return &Violation{Name: strings.TrimPrefix(name, "/"), Matched: matched, Verb: verb}
}
