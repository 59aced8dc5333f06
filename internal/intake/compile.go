package intake

import (
	"fmt"
	"strings"

	ierrors "clinical-intake/internal/errors"
)

// Compile flattens the selected complaints into one queue: for each complaint,
// in selection order, a header question followed by its question block.
// Repeated names are compiled once. Two distinct complaints producing the same
// question key is a catalog error and fails the whole compile.
func (c *Catalog) Compile(complaints []string) (Queue, error) {
	names := make([]string, 0, len(complaints))
	seen := make(map[string]bool, len(complaints))
	for _, raw := range complaints {
		name := strings.TrimSpace(raw)
		if name == "" {
			return nil, ierrors.New(ierrors.ErrCodeInvalidQueue, "complaint name is blank")
		}
		if seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	if len(names) == 0 {
		return nil, ierrors.New(ierrors.ErrCodeInvalidQueue, "no complaints selected").
			WithSuggestion("select at least one presenting complaint")
	}

	owner := make(map[string]string)
	queue := make(Queue, 0, len(names)*6)
	for _, name := range names {
		block := append([]Question{headerFor(name, c.Has(name))}, c.QuestionsFor(name)...)
		for _, q := range block {
			if prev, dup := owner[q.Key]; dup {
				return nil, c.collision(q.Key, name, prev)
			}
			owner[q.Key] = name
			queue = append(queue, q)
		}
	}
	return queue, nil
}

// collision reports a key shared by complaints name and prev. A custom name
// whose generated keys land on a catalog complaint's keys gets a suggestion
// saying so, since nothing in the name itself hints at the clash.
func (c *Catalog) collision(key, name, prev string) error {
	err := ierrors.Newf(ierrors.ErrCodeKeyCollision,
		"question key %q of complaint %q collides with complaint %q", key, name, prev)
	custom, catalogued := name, prev
	if c.Has(name) {
		custom, catalogued = prev, name
	}
	if !c.Has(custom) && c.Has(catalogued) {
		return err.WithSuggestion(fmt.Sprintf("custom complaint %q generates keys already used by %q; use a more descriptive name", custom, catalogued))
	}
	return err.WithSuggestion("rename one of the complaints or give it a catalog entry")
}

// Compile compiles complaints against the default catalog.
func Compile(complaints []string) (Queue, error) {
	return DefaultCatalog().Compile(complaints)
}
