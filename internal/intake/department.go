package intake

import "strings"

// GeneralDepartment is assumed when a session or request names none.
const GeneralDepartment = "general"

var departments = map[string]bool{
	GeneralDepartment:       true,
	"pediatric":             true,
	"obstetrics-gynecology": true,
	"internal-medicine":     true,
	"cardiology":            true,
	"neurology":             true,
	"ophthalmology":         true,
}

var departmentAliases = map[string]string{
	"pediatrics":              "pediatric",
	"paediatric":              "pediatric",
	"paediatrics":             "pediatric",
	"peds":                    "pediatric",
	"obgyn":                   "obstetrics-gynecology",
	"ob-gyn":                  "obstetrics-gynecology",
	"og":                      "obstetrics-gynecology",
	"o&g":                     "obstetrics-gynecology",
	"obstetrics-&-gynecology": "obstetrics-gynecology",
	"obstetrics":              "obstetrics-gynecology",
	"gynecology":              "obstetrics-gynecology",
	"medicine":                "internal-medicine",
}

// CanonicalDepartment maps a department tag and its common spellings
// ("Pediatrics", "obgyn", "internal medicine") onto a known department.
// ok is false when the tag names no known department.
func CanonicalDepartment(department string) (string, bool) {
	d := strings.Join(strings.Fields(strings.ToLower(department)), "-")
	d = strings.ReplaceAll(d, "_", "-")
	if alias, ok := departmentAliases[d]; ok {
		d = alias
	}
	return d, departments[d]
}

// NormalizeDepartment returns the canonical name of a known department, the
// lower-cased tag for one it does not know, and general for a blank tag.
// Unknown tags are kept so catalog overlays can add departments.
func NormalizeDepartment(department string) string {
	d, _ := CanonicalDepartment(department)
	if d == "" {
		return GeneralDepartment
	}
	return d
}
