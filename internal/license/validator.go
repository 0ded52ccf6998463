// Package license classifies license identifiers and detects pairwise
// incompatibilities between a bundle's primary license and the licenses
// of its dependencies. It is a pure function of its static tables: no
// network, no database, no mutable state, safe for concurrent use.
package license

import (
	"fmt"
	"sort"
	"strings"
)

// License categories.
const (
	CategoryPermissive  = "permissive"
	CategoryCopyleft    = "copyleft"
	CategoryProprietary = "proprietary"
	CategoryUnknown     = "unknown"
)

// Overall bundle compatibility verdicts.
const (
	CompatibilityCompatible     = "compatible"
	CompatibilityRequiresReview = "requires_review"
	CompatibilityIncompatible   = "incompatible"
)

// Info describes one classified license.
type Info struct {
	ID                    string `json:"id"`
	Name                  string `json:"name"`
	Category              string `json:"category"`
	OSIApproved           bool   `json:"osi_approved"`
	RedistributionAllowed bool   `json:"redistribution_allowed"`
	AttributionRequired   bool   `json:"attribution_required"`
	Copyleft              bool   `json:"copyleft"`
}

// Conflict records one incompatible license pair, members in sorted order.
type Conflict struct {
	First  string `json:"first"`
	Second string `json:"second"`
	Reason string `json:"reason"`
}

// ValidationResult is the outcome of a bundle license check.
type ValidationResult struct {
	IsValid       bool       `json:"is_valid"`
	Compatibility string     `json:"compatibility"`
	Warnings      []string   `json:"warnings,omitempty"`
	Conflicts     []Conflict `json:"conflicts,omitempty"`
}

var permissiveLicenses = map[string]Info{
	"MIT":          {ID: "MIT", Name: "MIT License", Category: CategoryPermissive, OSIApproved: true, RedistributionAllowed: true, AttributionRequired: true},
	"Apache-2.0":   {ID: "Apache-2.0", Name: "Apache License 2.0", Category: CategoryPermissive, OSIApproved: true, RedistributionAllowed: true, AttributionRequired: true},
	"BSD-2-Clause": {ID: "BSD-2-Clause", Name: "BSD 2-Clause License", Category: CategoryPermissive, OSIApproved: true, RedistributionAllowed: true, AttributionRequired: true},
	"BSD-3-Clause": {ID: "BSD-3-Clause", Name: "BSD 3-Clause License", Category: CategoryPermissive, OSIApproved: true, RedistributionAllowed: true, AttributionRequired: true},
	"ISC":          {ID: "ISC", Name: "ISC License", Category: CategoryPermissive, OSIApproved: true, RedistributionAllowed: true, AttributionRequired: true},
	"Zlib":         {ID: "Zlib", Name: "zlib License", Category: CategoryPermissive, OSIApproved: true, RedistributionAllowed: true, AttributionRequired: true},
	"Unlicense":    {ID: "Unlicense", Name: "The Unlicense", Category: CategoryPermissive, OSIApproved: true, RedistributionAllowed: true},
	"0BSD":         {ID: "0BSD", Name: "BSD Zero Clause License", Category: CategoryPermissive, OSIApproved: true, RedistributionAllowed: true},
	"CC0-1.0":      {ID: "CC0-1.0", Name: "Creative Commons Zero 1.0", Category: CategoryPermissive, RedistributionAllowed: true},
}

var copyleftLicenses = map[string]Info{
	"GPL-2.0":      {ID: "GPL-2.0", Name: "GNU GPL v2", Category: CategoryCopyleft, OSIApproved: true, RedistributionAllowed: true, AttributionRequired: true, Copyleft: true},
	"GPL-3.0":      {ID: "GPL-3.0", Name: "GNU GPL v3", Category: CategoryCopyleft, OSIApproved: true, RedistributionAllowed: true, AttributionRequired: true, Copyleft: true},
	"AGPL-3.0":     {ID: "AGPL-3.0", Name: "GNU AGPL v3", Category: CategoryCopyleft, OSIApproved: true, RedistributionAllowed: true, AttributionRequired: true, Copyleft: true},
	"LGPL-2.1":     {ID: "LGPL-2.1", Name: "GNU LGPL v2.1", Category: CategoryCopyleft, OSIApproved: true, RedistributionAllowed: true, AttributionRequired: true, Copyleft: true},
	"LGPL-3.0":     {ID: "LGPL-3.0", Name: "GNU LGPL v3", Category: CategoryCopyleft, OSIApproved: true, RedistributionAllowed: true, AttributionRequired: true, Copyleft: true},
	"MPL-2.0":      {ID: "MPL-2.0", Name: "Mozilla Public License 2.0", Category: CategoryCopyleft, OSIApproved: true, RedistributionAllowed: true, AttributionRequired: true, Copyleft: true},
	"EPL-2.0":      {ID: "EPL-2.0", Name: "Eclipse Public License 2.0", Category: CategoryCopyleft, OSIApproved: true, RedistributionAllowed: true, AttributionRequired: true, Copyleft: true},
	"CC-BY-SA-4.0": {ID: "CC-BY-SA-4.0", Name: "Creative Commons BY-SA 4.0", Category: CategoryCopyleft, RedistributionAllowed: true, AttributionRequired: true, Copyleft: true},
}

var proprietaryLicenses = map[string]Info{
	"Proprietary":  {ID: "Proprietary", Name: "Proprietary", Category: CategoryProprietary},
	"Commercial":   {ID: "Commercial", Name: "Commercial", Category: CategoryProprietary},
	"BUSL-1.1":     {ID: "BUSL-1.1", Name: "Business Source License 1.1", Category: CategoryProprietary},
	"CC-BY-NC-4.0": {ID: "CC-BY-NC-4.0", Name: "Creative Commons BY-NC 4.0", Category: CategoryProprietary, AttributionRequired: true},
}

// Known incompatible pairs, checked against both exact identifiers and
// base families (version qualifiers stripped).
var incompatiblePairs = [][2]string{
	{"GPL-2.0", "Apache-2.0"},
	{"GPL-2.0", "GPL-3.0"},
	{"GPL-2.0", "EPL-2.0"},
	{"GPL-2.0", "CDDL-1.0"},
	{"AGPL-3.0", "BUSL-1.1"},
}

// GetInfo classifies a license identifier. Lookup is exact first, then
// case-insensitive. Identifiers that match no table come back with
// category "unknown" rather than an error.
func GetInfo(id string) Info {
	if info, ok := lookup(id); ok {
		return info
	}

	for _, table := range []map[string]Info{permissiveLicenses, copyleftLicenses, proprietaryLicenses} {
		for known, info := range table {
			if strings.EqualFold(known, id) {
				return info
			}
		}
	}

	return Info{ID: id, Name: id, Category: CategoryUnknown}
}

func lookup(id string) (Info, bool) {
	if info, ok := permissiveLicenses[id]; ok {
		return info, true
	}
	if info, ok := copyleftLicenses[id]; ok {
		return info, true
	}
	if info, ok := proprietaryLicenses[id]; ok {
		return info, true
	}
	return Info{}, false
}

// Validate classifies a single license and collects advisory warnings.
// Warnings never fail validation on their own.
func Validate(id string) (Info, []string) {
	info := GetInfo(id)

	var warnings []string

	if info.Category == CategoryUnknown {
		warnings = append(warnings, fmt.Sprintf("license %q is not in the known license tables", id))
	}
	if !info.OSIApproved && info.Category != CategoryUnknown {
		warnings = append(warnings, fmt.Sprintf("license %q is not OSI approved", info.ID))
	}
	if !info.RedistributionAllowed && info.Category != CategoryUnknown {
		warnings = append(warnings, fmt.Sprintf("license %q restricts redistribution", info.ID))
	}
	if info.Copyleft {
		warnings = append(warnings, fmt.Sprintf("license %q is copyleft: derivative works must keep a compatible license", info.ID))
	}

	return info, warnings
}

// ValidateBundle checks the primary license against every dependency
// license, pairwise across the whole set. Each unordered pair is checked
// exactly once. Any incompatible pair makes the bundle invalid; warnings
// alone downgrade the verdict to requires_review.
func ValidateBundle(primary string, dependencies []string) ValidationResult {
	all := append([]string{primary}, dependencies...)

	result := ValidationResult{IsValid: true, Compatibility: CompatibilityCompatible}

	warned := make(map[string]bool)
	for _, id := range all {
		if warned[id] {
			continue
		}
		warned[id] = true

		_, warnings := Validate(id)
		result.Warnings = append(result.Warnings, warnings...)
	}

	checked := make(map[string]bool)
	for i := 0; i < len(all); i++ {
		for j := i + 1; j < len(all); j++ {
			a, b := sortPair(all[i], all[j])
			if a == b || checked[a+"|"+b] {
				continue
			}
			checked[a+"|"+b] = true

			if reason, bad := incompatible(a, b); bad {
				result.Conflicts = append(result.Conflicts, Conflict{First: a, Second: b, Reason: reason})
			}
		}
	}

	if len(result.Conflicts) > 0 {
		result.IsValid = false
		result.Compatibility = CompatibilityIncompatible
	} else if len(result.Warnings) > 0 {
		result.Compatibility = CompatibilityRequiresReview
	}

	return result
}

// incompatible decides whether two licenses conflict: exact table match,
// then family-level table match, then the general rule that a strong
// copyleft license can never be combined with a proprietary one.
func incompatible(a, b string) (string, bool) {
	if pairListed(a, b) {
		return "known incompatible license pair", true
	}

	famA, famB := BaseFamily(a), BaseFamily(b)
	if (famA != a || famB != b) && pairListed(famA, famB) {
		return "license families are a known incompatible pair", true
	}

	if strongCopyleft(a) && GetInfo(b).Category == CategoryProprietary ||
		strongCopyleft(b) && GetInfo(a).Category == CategoryProprietary {
		return "copyleft license cannot be combined with a proprietary license", true
	}

	return "", false
}

func pairListed(a, b string) bool {
	for _, pair := range incompatiblePairs {
		if (strings.EqualFold(pair[0], a) && strings.EqualFold(pair[1], b)) ||
			(strings.EqualFold(pair[0], b) && strings.EqualFold(pair[1], a)) {
			return true
		}
	}
	return false
}

// BaseFamily strips version qualifier suffixes such as -only and
// -or-later, reducing e.g. GPL-3.0-or-later to GPL-3.0.
func BaseFamily(id string) string {
	id = strings.TrimSuffix(id, "-only")
	id = strings.TrimSuffix(id, "-or-later")
	return id
}

func strongCopyleft(id string) bool {
	upper := strings.ToUpper(id)
	return strings.Contains(upper, "GPL") || strings.Contains(upper, "AGPL")
}

func sortPair(a, b string) (string, string) {
	pair := []string{a, b}
	sort.Strings(pair)
	return pair[0], pair[1]
}
