package intake

import (
	"bytes"
	_ "embed"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"

	ierrors "clinical-intake/internal/errors"
)

//go:embed catalog.yaml
var defaultCatalogYAML []byte

var defaultCatalog = mustLoadDefault()

// CourseOptions are offered on the course question of every generated block.
var CourseOptions = []string{"Improving", "Worsening", "Unchanged"}

type catalogFile struct {
	Complaints []struct {
		Name      string     `yaml:"name"`
		Questions []Question `yaml:"questions"`
	} `yaml:"complaints"`
	Departments map[string][]string `yaml:"departments"`
}

// Catalog maps complaint names to their fixed question blocks. A Catalog is
// read-only after construction.
//
// Complaints missing from the catalog get generated keys of the form
// <slug>_character, <slug>_course and so on, in the same key space as catalog
// keys. A custom complaint whose slug matches a catalog key prefix ("cp"
// next to "Chest pain") therefore fails to compile with KeyCollision.
type Catalog struct {
	order       []string
	blocks      map[string][]Question
	departments map[string][]string
}

// DefaultCatalog returns the built-in catalog.
func DefaultCatalog() *Catalog {
	return defaultCatalog
}

func mustLoadDefault() *Catalog {
	c, err := LoadCatalog(bytes.NewReader(defaultCatalogYAML))
	if err != nil {
		panic(fmt.Sprintf("intake: embedded catalog: %v", err))
	}
	return c
}

// LoadCatalog parses and validates a YAML catalog.
func LoadCatalog(r io.Reader) (*Catalog, error) {
	var f catalogFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && err != io.EOF {
		return nil, ierrors.Wrap(ierrors.ErrCodeCatalogInvalid, "decode catalog", err)
	}

	c := &Catalog{
		blocks:      make(map[string][]Question, len(f.Complaints)),
		departments: make(map[string][]string, len(f.Departments)),
	}
	for _, entry := range f.Complaints {
		name := strings.TrimSpace(entry.Name)
		if name == "" {
			return nil, ierrors.New(ierrors.ErrCodeCatalogInvalid, "complaint with empty name")
		}
		if _, dup := c.blocks[name]; dup {
			return nil, ierrors.Newf(ierrors.ErrCodeCatalogInvalid, "complaint %q listed twice", name)
		}
		if err := validateBlock(name, entry.Questions); err != nil {
			return nil, err
		}
		c.order = append(c.order, name)
		c.blocks[name] = entry.Questions
	}
	for dept, names := range f.Departments {
		c.departments[NormalizeDepartment(dept)] = append([]string(nil), names...)
	}
	return c, nil
}

func validateBlock(name string, qs []Question) error {
	if len(qs) == 0 {
		return ierrors.Newf(ierrors.ErrCodeCatalogInvalid, "complaint %q has no questions", name)
	}
	seen := make(map[string]bool, len(qs))
	for _, q := range qs {
		switch {
		case strings.TrimSpace(q.Key) == "":
			return ierrors.Newf(ierrors.ErrCodeCatalogInvalid, "complaint %q has a question without a key", name)
		case strings.HasPrefix(q.Key, HeaderKeyPrefix):
			return ierrors.Newf(ierrors.ErrCodeCatalogInvalid, "key %q uses the reserved header prefix", q.Key)
		case seen[q.Key]:
			return ierrors.Newf(ierrors.ErrCodeCatalogInvalid, "key %q repeated in complaint %q", q.Key, name)
		case !q.Shape.Valid():
			return ierrors.Newf(ierrors.ErrCodeCatalogInvalid, "key %q has unknown shape %q", q.Key, q.Shape)
		case q.Shape != FreeText && len(q.Options) == 0 && !q.AllowText:
			return ierrors.Newf(ierrors.ErrCodeCatalogInvalid, "key %q offers no way to answer", q.Key)
		}
		seen[q.Key] = true
	}
	return nil
}

// Merge returns a new catalog holding c's entries overridden and extended by
// overlay's. Department lists in overlay replace those in c.
func (c *Catalog) Merge(overlay *Catalog) *Catalog {
	out := &Catalog{
		order:       append([]string(nil), c.order...),
		blocks:      make(map[string][]Question, len(c.blocks)+len(overlay.blocks)),
		departments: make(map[string][]string, len(c.departments)+len(overlay.departments)),
	}
	for k, v := range c.blocks {
		out.blocks[k] = v
	}
	for k, v := range c.departments {
		out.departments[k] = v
	}
	for _, name := range overlay.order {
		if _, ok := out.blocks[name]; !ok {
			out.order = append(out.order, name)
		}
		out.blocks[name] = overlay.blocks[name]
	}
	for k, v := range overlay.departments {
		out.departments[k] = v
	}
	return out
}

// Names returns the catalog's complaint names in declaration order.
func (c *Catalog) Names() []string {
	return append([]string(nil), c.order...)
}

// Has reports whether complaint has a fixed block (case-sensitive).
func (c *Catalog) Has(complaint string) bool {
	_, ok := c.blocks[complaint]
	return ok
}

// ComplaintsFor returns the complaints suggested for a department.
func (c *Catalog) ComplaintsFor(department string) []string {
	if names, ok := c.departments[NormalizeDepartment(department)]; ok {
		return append([]string(nil), names...)
	}
	return c.Names()
}

// QuestionsFor returns the question block for complaint: the catalog entry on
// an exact match, otherwise a generated 5C block. It never fails.
func (c *Catalog) QuestionsFor(complaint string) []Question {
	if block, ok := c.blocks[complaint]; ok {
		out := make([]Question, len(block))
		for i, q := range block {
			out[i] = q.clone()
		}
		return out
	}
	return fallbackBlock(complaint)
}

func fallbackBlock(complaint string) []Question {
	slug := complaintSlug(complaint)
	return []Question{
		{Key: slug + "_character", Prompt: fmt.Sprintf("Character: describe the %s", complaint), Shape: FreeText, AllowText: true},
		{Key: slug + "_course", Prompt: "Course: is it improving or worsening?", Shape: SingleChoice, Options: append([]string(nil), CourseOptions...), AllowText: true},
		{Key: slug + "_chronology", Prompt: "Chronology: when did it start?", Shape: FreeText, AllowText: true},
		{Key: slug + "_contributing", Prompt: "Contributing factors: what makes it better or worse?", Shape: FreeText, AllowText: true},
		{Key: slug + "_consequences", Prompt: "Consequences: any associated symptoms?", Shape: MultiChoice, AllowText: true},
	}
}

// complaintSlug lower-cases name and collapses every run of characters that
// are not letters or digits into one underscore. Names with no letters or
// digits at all are hex encoded so the slug is never empty.
func complaintSlug(name string) string {
	var b strings.Builder
	pendingSep := false
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
			continue
		}
		pendingSep = true
	}
	if b.Len() == 0 {
		return "pc_" + hex.EncodeToString([]byte(name))
	}
	return b.String()
}

func headerFor(complaint string, known bool) Question {
	q := Question{
		Key:       HeaderKeyPrefix + complaint,
		Prompt:    fmt.Sprintf("Presenting complaint: %s (confirm or add detail)", complaint),
		Shape:     FreeText,
		AllowText: true,
		Complaint: complaint,
	}
	if known {
		q.Options = []string{complaint}
	}
	return q
}
