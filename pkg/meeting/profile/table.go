package profile

import (
	_ "embed"
	"fmt"
	"io"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	mqerrors "github.com/otherjamesbrown/meetiq/pkg/errors"
)

//go:embed profiles.yaml
var builtinProfiles []byte

// Table is an ordered, immutable set of profiles. Table order is the
// canonical tie-break order for classification.
type Table struct {
	profiles []Profile
	index    map[TypeID]int
}

type tableFile struct {
	Profiles []Profile `yaml:"profiles"`
}

// NewTable validates profiles and builds a table. GENERAL must be present.
func NewTable(profiles []Profile) (*Table, error) {
	if len(profiles) == 0 {
		return nil, fmt.Errorf("profile table is empty: %w", mqerrors.ErrValidation)
	}

	t := &Table{
		profiles: make([]Profile, len(profiles)),
		index:    make(map[TypeID]int, len(profiles)),
	}
	for i, p := range profiles {
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("%v: %w", err, mqerrors.ErrValidation)
		}
		if _, dup := t.index[p.ID]; dup {
			return nil, fmt.Errorf("duplicate profile %s: %w", p.ID, mqerrors.ErrValidation)
		}
		t.profiles[i] = p
		t.index[p.ID] = i
	}
	if _, ok := t.index[General]; !ok {
		return nil, fmt.Errorf("profile table must define %s: %w", General, mqerrors.ErrValidation)
	}
	return t, nil
}

// LoadTable parses a YAML profile table.
func LoadTable(r io.Reader) (*Table, error) {
	var f tableFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("parsing profile table: %w", err)
	}
	return NewTable(f.Profiles)
}

// LoadTableFile parses the YAML profile table at path.
func LoadTableFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening profile table: %w", err)
	}
	defer f.Close()
	return LoadTable(f)
}

var (
	defaultOnce  sync.Once
	defaultTable *Table
)

// Default returns the built-in table.
func Default() *Table {
	defaultOnce.Do(func() {
		var f tableFile
		if err := yaml.Unmarshal(builtinProfiles, &f); err != nil {
			panic(fmt.Sprintf("profile: built-in table: %v", err))
		}
		t, err := NewTable(f.Profiles)
		if err != nil {
			panic(fmt.Sprintf("profile: built-in table: %v", err))
		}
		defaultTable = t
	})
	return defaultTable
}

// Lookup returns the profile with the given id.
func (t *Table) Lookup(id TypeID) (Profile, bool) {
	i, ok := t.index[id]
	if !ok {
		return Profile{}, false
	}
	return t.profiles[i], true
}

// Get returns the profile with the given id, falling back to GENERAL.
func (t *Table) Get(id TypeID) Profile {
	if p, ok := t.Lookup(id); ok {
		return p
	}
	return t.profiles[t.index[General]]
}

// Has reports whether id is defined.
func (t *Table) Has(id TypeID) bool {
	_, ok := t.index[id]
	return ok
}

// Order returns profile ids in canonical order.
func (t *Table) Order() []TypeID {
	ids := make([]TypeID, len(t.profiles))
	for i, p := range t.profiles {
		ids[i] = p.ID
	}
	return ids
}

// Profiles returns the profiles in canonical order.
func (t *Table) Profiles() []Profile {
	out := make([]Profile, len(t.profiles))
	copy(out, t.profiles)
	return out
}

// Len returns the number of profiles.
func (t *Table) Len() int {
	return len(t.profiles)
}
