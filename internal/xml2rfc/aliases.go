package xml2rfc

import (
	"fmt"

	"bibxml/pkg/models"
	"bibxml/pkg/utils"
)

// Aliases maps legacy directory names to canonical dataset names. It is
// built once at startup and read concurrently afterwards.
type Aliases struct {
	order     []string
	aliases   map[string][]string
	canonical map[string]string
}

// NewAliases builds the registry from configured entries. Extra names are
// registered as canonical names without aliases unless an entry already
// covers them.
func NewAliases(entries []utils.AliasEntry, extra ...string) *Aliases {
	a := &Aliases{
		aliases:   make(map[string][]string),
		canonical: make(map[string]string),
	}
	for _, e := range entries {
		a.addCanonical(e.Name)
		for _, alias := range e.Aliases {
			if _, taken := a.canonical[alias]; taken {
				continue
			}
			a.canonical[alias] = e.Name
			a.aliases[e.Name] = append(a.aliases[e.Name], alias)
		}
	}
	for _, name := range extra {
		a.addCanonical(name)
	}
	return a
}

// CheckAliases rejects entries that alias one dataset under another
// dataset's name. Such an alias would be served as two directories.
func CheckAliases(entries []utils.AliasEntry, datasets ...string) error {
	known := make(map[string]bool, len(datasets))
	for _, ds := range datasets {
		known[ds] = true
	}
	for _, e := range entries {
		for _, alias := range e.Aliases {
			if alias != e.Name && known[alias] {
				return fmt.Errorf("alias %q of %s collides with dataset %q", alias, e.Name, alias)
			}
		}
	}
	return nil
}

func (a *Aliases) addCanonical(name string) {
	if _, ok := a.canonical[name]; ok {
		return
	}
	a.canonical[name] = name
	a.order = append(a.order, name)
}

// Unalias returns the canonical dataset name for name, which may itself be
// canonical.
func (a *Aliases) Unalias(name string) (string, error) {
	if c, ok := a.canonical[name]; ok {
		return c, nil
	}
	return "", &models.UnknownAliasError{Name: name}
}

// GetAliases returns the aliases of a canonical name in registration order.
func (a *Aliases) GetAliases(name string) []string {
	out := make([]string, len(a.aliases[name]))
	copy(out, a.aliases[name])
	return out
}

// Canonical lists canonical names in registration order.
func (a *Aliases) Canonical() []string {
	out := make([]string, len(a.order))
	copy(out, a.order)
	return out
}
