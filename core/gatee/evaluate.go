// Package gatee implements the Gate E evaluation engine: a pure, deterministic
// transform over a synthesis document and a validated-citation pool. Evaluate
// performs no I/O; the report writer in this package handles persistence.
package gatee

import (
	"math"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/davidahmann/plumb/core/schema/v1/gates"
	schemagatee "github.com/davidahmann/plumb/core/schema/v1/gatee"
)

// Advisory warnings. Neither affects pass/fail.
const (
	WarnLowCitationUtilization = "LOW_CITATION_UTILIZATION"
	WarnHighDuplicateCitation  = "HIGH_DUPLICATE_CITATION_RATE"
	lowUtilizationThreshold    = 0.6
	highDuplicateRateThreshold = 0.2
	fullSectionCoveragePercent = 100
)

// RequiredSections are the level-2 headings every synthesis must carry.
var RequiredSections = []string{"Summary", "Key Findings", "Evidence", "Caveats"}

var (
	citationMarkerPattern = regexp.MustCompile(`\[@([A-Za-z0-9_:-]+)\]`)
	numericTokenPattern   = regexp.MustCompile(`-?\d+(?:\.\d+)?%?`)
	orderedItemPattern    = regexp.MustCompile(`^\s*\d+[.)]\s`)
	fencePattern          = regexp.MustCompile("^\\s*```")
)

type Metrics struct {
	UncitedNumericClaims    int     `json:"uncited_numeric_claims"`
	ReportSectionsPresent   int     `json:"report_sections_present"`
	ValidatedCidsCount      int     `json:"validated_cids_count"`
	UsedCidsCount           int     `json:"used_cids_count"`
	TotalCidMentions        int     `json:"total_cid_mentions"`
	CitationUtilizationRate float64 `json:"citation_utilization_rate"`
	DuplicateCitationRate   float64 `json:"duplicate_citation_rate"`
}

type Evaluation struct {
	Status          string
	Metrics         Metrics
	Findings        []schemagatee.Finding
	PresentSections []string
	MissingSections []string
	UsedCids        []string
	UnusedCids      []string
	Warnings        []string
}

// Evaluate computes every Gate E metric from the synthesis markdown and the
// validated cid set. Status is pass iff no uncited numeric claim exists and
// all required sections are present; citation metrics only produce warnings.
func Evaluate(markdown string, validatedCids map[string]struct{}) Evaluation {
	findings := findUncitedNumericClaims(markdown)
	present, missing := findRequiredSections(markdown)
	coverage := fullSectionCoveragePercent * len(present) / len(RequiredSections)

	usedCids, unusedCids, totalMentions := collectCitationUsage(markdown, validatedCids)

	utilization := 0.0
	if len(validatedCids) > 0 {
		utilization = round6(float64(len(usedCids)) / float64(len(validatedCids)))
	}
	// Zero mentions duplicate nothing: the rate is defined as 0 at that boundary.
	duplicateRate := 0.0
	if totalMentions > 0 {
		duplicateRate = round6(1 - float64(len(usedCids))/float64(totalMentions))
	}

	warnings := make([]string, 0, 2)
	if utilization < lowUtilizationThreshold {
		warnings = append(warnings, WarnLowCitationUtilization)
	}
	if duplicateRate > highDuplicateRateThreshold {
		warnings = append(warnings, WarnHighDuplicateCitation)
	}
	sort.Strings(warnings)

	status := gates.StatusFail
	if len(findings) == 0 && coverage == fullSectionCoveragePercent {
		status = gates.StatusPass
	}

	return Evaluation{
		Status: status,
		Metrics: Metrics{
			UncitedNumericClaims:    len(findings),
			ReportSectionsPresent:   coverage,
			ValidatedCidsCount:      len(validatedCids),
			UsedCidsCount:           len(usedCids),
			TotalCidMentions:        totalMentions,
			CitationUtilizationRate: utilization,
			DuplicateCitationRate:   duplicateRate,
		},
		Findings:        findings,
		PresentSections: present,
		MissingSections: missing,
		UsedCids:        usedCids,
		UnusedCids:      unusedCids,
		Warnings:        warnings,
	}
}

type documentLine struct {
	number int
	text   string
}

// findUncitedNumericClaims splits the document into paragraphs on blank lines,
// skipping fenced code blocks. Paragraphs carrying at least one citation
// marker are exempt; in the rest, every line that is not an ordered-list item
// is scanned for numeric tokens.
func findUncitedNumericClaims(markdown string) []schemagatee.Finding {
	findings := []schemagatee.Finding{}
	paragraph := []documentLine{}
	inFence := false

	flush := func() {
		if len(paragraph) > 0 {
			findings = append(findings, scanParagraph(paragraph)...)
			paragraph = paragraph[:0]
		}
	}

	for index, text := range strings.Split(markdown, "\n") {
		if fencePattern.MatchString(text) {
			inFence = !inFence
			flush()
			continue
		}
		if inFence {
			continue
		}
		if strings.TrimSpace(text) == "" {
			flush()
			continue
		}
		paragraph = append(paragraph, documentLine{number: index + 1, text: text})
	}
	flush()
	return findings
}

func scanParagraph(paragraph []documentLine) []schemagatee.Finding {
	for _, line := range paragraph {
		if citationMarkerPattern.MatchString(line.text) {
			return nil
		}
	}
	findings := []schemagatee.Finding{}
	for _, line := range paragraph {
		if orderedItemPattern.MatchString(line.text) {
			continue
		}
		for _, span := range numericTokenPattern.FindAllStringIndex(line.text, -1) {
			findings = append(findings, schemagatee.Finding{
				Line:   line.number,
				Column: utf8.RuneCountInString(line.text[:span[0]]) + 1,
				Token:  line.text[span[0]:span[1]],
				Text:   line.text,
			})
		}
	}
	return findings
}

func findRequiredSections(markdown string) (present, missing []string) {
	headings := map[string]struct{}{}
	inFence := false
	for _, text := range strings.Split(markdown, "\n") {
		if fencePattern.MatchString(text) {
			inFence = !inFence
			continue
		}
		if inFence {
			continue
		}
		trimmed := strings.TrimSpace(text)
		if rest, ok := strings.CutPrefix(trimmed, "## "); ok {
			headings[strings.TrimSpace(rest)] = struct{}{}
		}
	}
	present = []string{}
	missing = []string{}
	for _, section := range RequiredSections {
		if _, ok := headings[section]; ok {
			present = append(present, section)
		} else {
			missing = append(missing, section)
		}
	}
	return present, missing
}

func collectCitationUsage(markdown string, validatedCids map[string]struct{}) (used, unused []string, totalMentions int) {
	mentioned := map[string]struct{}{}
	for _, match := range citationMarkerPattern.FindAllStringSubmatch(markdown, -1) {
		mentioned[match[1]] = struct{}{}
		totalMentions++
	}
	used = []string{}
	for cid := range mentioned {
		if _, ok := validatedCids[cid]; ok {
			used = append(used, cid)
		}
	}
	unused = []string{}
	usedSet := map[string]struct{}{}
	for _, cid := range used {
		usedSet[cid] = struct{}{}
	}
	for cid := range validatedCids {
		if _, ok := usedSet[cid]; !ok {
			unused = append(unused, cid)
		}
	}
	sort.Strings(used)
	sort.Strings(unused)
	return used, unused, totalMentions
}

func round6(value float64) float64 {
	return math.Round(value*1e6) / 1e6
}
