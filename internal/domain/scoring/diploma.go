// Package scoring turns match outcomes into leaderboard points.
//
// Points are first derived from the problem's base score and the outcome
// (PvpPoints), then adjusted for the player's diploma track against the
// problem subject and for the completion bonus (Adjuster).
package scoring

import "strings"

// DiplomaCategory groups diploma tracks.
type DiplomaCategory string

const (
	DiplomaScience      DiplomaCategory = "SCIENCE"
	DiplomaHumanities   DiplomaCategory = "HUMANITIES"
	DiplomaArtsPhysical DiplomaCategory = "ARTS_PHYSICAL"
	DiplomaUnknown      DiplomaCategory = "UNKNOWN"
)

// SubjectCategory groups problem subjects.
type SubjectCategory string

const (
	SubjectScience    SubjectCategory = "SCIENCE_SUBJECT"
	SubjectHumanities SubjectCategory = "HUMANITIES_SUBJECT"
	SubjectOther      SubjectCategory = "OTHER"
)

var diplomaTracks = map[string]DiplomaCategory{
	"IT":            DiplomaScience,
	"공학":            DiplomaScience,
	"수학":            DiplomaScience,
	"물리":            DiplomaScience,
	"화학":            DiplomaScience,
	"생명과학":          DiplomaScience,
	"IB(자연)":        DiplomaScience,
	"인문학(문학/사학/철학)": DiplomaHumanities,
	"국제어문":          DiplomaHumanities,
	"사회과학":          DiplomaHumanities,
	"경제경영":          DiplomaHumanities,
	"IB(인문)":        DiplomaHumanities,
	"예술":            DiplomaArtsPhysical,
	"체육":            DiplomaArtsPhysical,
}

var subjectGroups = map[string]SubjectCategory{
	"물리I":   SubjectScience,
	"화학I":   SubjectScience,
	"생명과학I": SubjectScience,
	"국어":    SubjectHumanities,
	"사회":    SubjectHumanities,
	"역사":    SubjectHumanities,
}

// ClassifyDiploma maps a diploma name to its category.
func ClassifyDiploma(name string) DiplomaCategory {
	if c, ok := diplomaTracks[strings.TrimSpace(name)]; ok {
		return c
	}
	return DiplomaUnknown
}

// ClassifySubject maps a subject name to its category.
func ClassifySubject(name string) SubjectCategory {
	if c, ok := subjectGroups[strings.TrimSpace(name)]; ok {
		return c
	}
	return SubjectOther
}

// ParseDiplomaCategory accepts a category name such as "science".
func ParseDiplomaCategory(s string) (DiplomaCategory, bool) {
	c := DiplomaCategory(strings.ToUpper(strings.TrimSpace(s)))
	switch c {
	case DiplomaScience, DiplomaHumanities, DiplomaArtsPhysical, DiplomaUnknown:
		return c, true
	default:
		return "", false
	}
}

// DiplomasIn lists the diploma names of a category, for filters and docs.
func DiplomasIn(c DiplomaCategory) []string {
	var out []string
	for name, cat := range diplomaTracks {
		if cat == c {
			out = append(out, name)
		}
	}
	return out
}
