// Package branches is the registry of merchant branches keyed by stable id,
// with each branch's city, coordinates and POS mapping.
package branches

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

var ErrUnknownBranch = errors.New("unknown branch")

// Branch is a pickup/dispatch location.
type Branch struct {
	ID          string       `yaml:"id" json:"id"`
	Name        string       `yaml:"name" json:"name"`
	City        string       `yaml:"city" json:"city"`
	Location    *Coordinates `yaml:"location,omitempty" json:"location,omitempty"`
	POSBranchID string       `yaml:"posBranchId,omitempty" json:"posBranchId,omitempty"`
	Phone       string       `yaml:"phone,omitempty" json:"phone,omitempty"`
	Aliases     []string     `yaml:"aliases,omitempty" json:"aliases,omitempty"`
}

// Origin returns the branch coordinates, falling back to the city centre.
func (b Branch) Origin() (Coordinates, bool) {
	if b.Location != nil {
		return *b.Location, true
	}
	return CityCenter(b.City)
}

type file struct {
	Branches []Branch `yaml:"branches"`
}

// Registry resolves branches by id. It is immutable after construction.
type Registry struct {
	byID  map[string]Branch
	order []string
}

// NewRegistry indexes branches. Duplicate or empty ids are rejected.
func NewRegistry(list []Branch) (*Registry, error) {
	r := &Registry{byID: make(map[string]Branch, len(list))}
	for i, branch := range list {
		id := strings.TrimSpace(branch.ID)
		if id == "" {
			return nil, fmt.Errorf("branch %d: id is required", i)
		}
		if _, dup := r.byID[id]; dup {
			return nil, fmt.Errorf("branch %q: duplicate id", id)
		}
		branch.ID = id
		r.byID[id] = branch
		r.order = append(r.order, id)
	}
	sort.Strings(r.order)
	return r, nil
}

// Load reads a YAML registry file of the form `branches: [...]`.
func Load(path string) (*Registry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read branches file: %w", err)
	}
	return Parse(raw)
}

// Parse decodes YAML registry content.
func Parse(raw []byte) (*Registry, error) {
	var f file
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("decode branches: %w", err)
	}
	return NewRegistry(f.Branches)
}

// Lookup returns the branch with the given id. Clients that only know a
// branch by its display name are matched through FindByName.
func (r *Registry) Lookup(id string) (Branch, error) {
	if branch, ok := r.byID[strings.TrimSpace(id)]; ok {
		return branch, nil
	}
	if branch, ok := r.FindByName(id); ok {
		return branch, nil
	}
	return Branch{}, fmt.Errorf("%w: %s", ErrUnknownBranch, id)
}

// All returns every branch ordered by id.
func (r *Registry) All() []Branch {
	out := make([]Branch, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}

// FindByName matches a free-text branch name against names and aliases.
// Exact matches win over substring matches; an ambiguous name matches nothing.
func (r *Registry) FindByName(name string) (Branch, bool) {
	needle := simplify(name)
	if needle == "" {
		return Branch{}, false
	}

	var partial []Branch
	for _, id := range r.order {
		branch := r.byID[id]
		for _, candidate := range append([]string{branch.Name}, branch.Aliases...) {
			hay := simplify(candidate)
			if hay == "" {
				continue
			}
			if hay == needle {
				return branch, true
			}
			if strings.Contains(hay, needle) || strings.Contains(needle, hay) {
				partial = append(partial, branch)
				break
			}
		}
	}

	if len(partial) == 1 {
		return partial[0], true
	}
	return Branch{}, false
}
