package matching

import (
	"regexp"
	"strconv"
	"strings"
)

// Components are the structured fields extracted from a free-text
// product designation. Empty fields mean "no evidence", never "no
// match": the cascade treats them as missing signal.
type Components struct {
	Molecule   string
	Dosage     string
	Form       string
	Packaging  int
	Originator string
	Raw        string
}

// Canonical pharmaceutical forms, abbreviation first. Order matters:
// the first entry whose abbreviation appears as a whole word wins.
var formsTable = []struct {
	Abbr string
	Full string
}{
	{"cpr", "comprime"},
	{"cp", "comprime"},
	{"comp", "comprime"},
	{"comprime", "comprime"},
	{"gel", "gelule"},
	{"gelule", "gelule"},
	{"caps", "capsule"},
	{"capsule", "capsule"},
	{"sol", "solution"},
	{"solution", "solution"},
	{"susp", "suspension"},
	{"suspension", "suspension"},
	{"inj", "injectable"},
	{"injectable", "injectable"},
	{"sirop", "sirop"},
	{"cr", "creme"},
	{"creme", "creme"},
	{"pom", "pommade"},
	{"pommade", "pommade"},
	{"sachet", "sachet"},
	{"patch", "patch"},
	{"collyre", "collyre"},
	{"spray", "spray"},
	{"aerosol", "aerosol"},
	{"suppo", "suppositoire"},
	{"suppositoire", "suppositoire"},
	{"ovule", "ovule"},
	{"granule", "granule"},
	{"pdre", "poudre"},
	{"poudre", "poudre"},
	{"fl", "flacon"},
	{"flacon", "flacon"},
	{"amp", "ampoule"},
	{"ampoule", "ampoule"},
}

var formWords = func() map[string]string {
	m := make(map[string]string, len(formsTable))
	for _, f := range formsTable {
		m[f.Abbr] = f.Full
	}
	return m
}()

// Vendor tokens stripped from designations before molecule extraction.
var knownVendors = map[string]bool{
	"viatris": true, "zentiva": true, "biogaran": true, "sandoz": true,
	"teva": true, "mylan": true, "arrow": true, "eg": true,
	"cristers": true, "accord": true, "ranbaxy": true, "zydus": true,
	"sun": true, "almus": true, "bgr": true, "ratiopharm": true,
	"actavis": true, "winthrop": true, "pfizer": true, "sanofi": true,
	"bayer": true, "novartis": true, "roche": true, "merck": true,
	"gsk": true, "astrazeneca": true, "lilly": true, "abbott": true,
	"lab": true, "labo": true, "laboratoire": true,
	"generique": true, "generic": true, "gen": true,
}

var (
	dosagePattern    = regexp.MustCompile(`(?i)(\d+[\d,.]*\s*(?:mg|g|ml|%|microgrammes?|mcg|ui|mmol|µg)(?:/\s*\d+\s*(?:ml|g|dose))?)`)
	packagingPattern = regexp.MustCompile(`(?i)B/?\s*(\d+)|(?:BT|BTE|BOITE|PLQ)?\s*(?:DE\s+)?(\d+)\s*(?:CPR|CP|GEL|CAPS|COMP)`)
	nonWordPattern   = regexp.MustCompile(`[^\pL\pN]`)
	spacesPattern    = regexp.MustCompile(`\s+`)
	leadingDigit     = regexp.MustCompile(`^\d`)
	wordPatterns     = map[string]*regexp.Regexp{}
)

func wordPattern(word string) *regexp.Regexp {
	if re, ok := wordPatterns[word]; ok {
		return re
	}
	re := regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(word) + `\b`)
	wordPatterns[word] = re
	return re
}

func init() {
	// precompile every word pattern up front; the map is then read-only
	for _, f := range formsTable {
		wordPattern(f.Abbr)
	}
	for v := range knownVendors {
		wordPattern(v)
	}
}

// Extract detects the designation format and extracts its components.
// A group label ("MOLECULE DOSE - REFERENCE DOSE, form") carries a
// " - " separator plus a dosage token; everything else is treated as a
// commercial name ("MOLECULE VENDOR DOSEmg Form B/QTY").
func Extract(text string) Components {
	if text == "" {
		return Components{}
	}
	lower := strings.ToLower(text)
	if strings.Contains(text, " - ") && (strings.Contains(lower, "mg") || strings.Contains(lower, "ml")) {
		return ExtractFromGroupLabel(text)
	}
	return ExtractFromCommercialName(text)
}

// ExtractFromGroupLabel parses the registry's group-label format,
// e.g. "RAMIPRIL 10 mg - TRIATEC 10 mg, comprime".
func ExtractFromGroupLabel(label string) Components {
	if label == "" {
		return Components{}
	}
	result := Components{Raw: label}

	parts := strings.SplitN(label, " - ", 2)
	genericPart := strings.TrimSpace(parts[0])
	originatorPart := ""
	if len(parts) > 1 {
		originatorPart = strings.TrimSpace(parts[1])
	}

	// form sits after the last comma
	if idx := strings.LastIndex(label, ","); idx >= 0 {
		formText := strings.ToLower(strings.TrimSpace(label[idx+1:]))
		for _, f := range formsTable {
			if strings.Contains(formText, f.Abbr) || strings.Contains(formText, f.Full) {
				result.Form = f.Full
				break
			}
		}
		if result.Form == "" {
			result.Form = formText
		}
	}

	if m := dosagePattern.FindStringSubmatch(genericPart); m != nil {
		result.Dosage = normalizeDosage(m[1])
	}

	molecule := dosagePattern.ReplaceAllString(genericPart, "")
	molecule = spacesPattern.ReplaceAllString(strings.TrimSpace(molecule), " ")
	result.Molecule = strings.ToUpper(molecule)

	if originatorPart != "" {
		originator := strings.SplitN(originatorPart, ",", 2)[0]
		originator = dosagePattern.ReplaceAllString(originator, "")
		result.Originator = strings.TrimSpace(originator)
	}

	return result
}

// ExtractFromCommercialName parses a commercial designation,
// e.g. "FUROSEMIDE VIATRIS 40mg Cpr B/30".
func ExtractFromCommercialName(name string) Components {
	if name == "" {
		return Components{}
	}
	result := Components{Raw: name}
	text := strings.TrimSpace(name)

	if m := dosagePattern.FindStringSubmatch(text); m != nil {
		result.Dosage = normalizeDosage(m[1])
	}

	if m := packagingPattern.FindStringSubmatch(text); m != nil {
		count := m[1]
		if count == "" {
			count = m[2]
		}
		if n, err := strconv.Atoi(count); err == nil {
			result.Packaging = n
		}
	}

	lower := strings.ToLower(text)
	for _, f := range formsTable {
		if wordPattern(f.Abbr).MatchString(lower) {
			result.Form = f.Full
			break
		}
	}

	// molecule: significant words before the dosage, vendors skipped
	var moleculeParts []string
	for _, word := range strings.Fields(text) {
		clean := strings.ToLower(nonWordPattern.ReplaceAllString(word, ""))
		if leadingDigit.MatchString(clean) {
			break
		}
		if knownVendors[clean] || len(clean) <= 2 {
			continue
		}
		if _, isForm := formWords[clean]; isForm {
			continue
		}
		moleculeParts = append(moleculeParts, strings.ToUpper(clean))
		if len(moleculeParts) >= 2 {
			break
		}
	}
	result.Molecule = strings.Join(moleculeParts, " ")

	return result
}

func normalizeDosage(dosage string) string {
	if dosage == "" {
		return ""
	}
	normalized := strings.ToUpper(strings.TrimSpace(dosage))
	normalized = strings.ReplaceAll(normalized, " ", "")
	normalized = strings.ReplaceAll(normalized, ",", ".")
	return normalized
}

var (
	fuseDosage    = regexp.MustCompile(`(\d+)\s*(MG|G|ML|MCG|UI)`)
	packByCount   = regexp.MustCompile(`\bB/?(\d+)\b`)
	packByKeyword = regexp.MustCompile(`\b(BTE|BOITE|PLQ)\s*\d+\b`)
)

// Normalize produces the canonical uppercase form used by the batch
// matcher: vendor tokens removed, form abbreviations expanded, dosage
// fused, packaging stripped.
//
//	Normalize("AMLODIPINE BIOGARAN 5MG CPR B/30") == "AMLODIPINE 5MG COMPRIME"
func Normalize(text string) string {
	if text == "" {
		return ""
	}
	result := strings.ToUpper(text)

	for vendor := range knownVendors {
		result = wordPattern(vendor).ReplaceAllString(result, "")
	}
	for _, f := range formsTable {
		result = wordPattern(f.Abbr).ReplaceAllString(result, strings.ToUpper(f.Full))
	}
	result = fuseDosage.ReplaceAllString(result, "${1}${2}")
	result = packByCount.ReplaceAllString(result, "")
	result = packByKeyword.ReplaceAllString(result, "")

	return strings.TrimSpace(spacesPattern.ReplaceAllString(result, " "))
}

// NormalizeCode strips a product code down to its last 13 digits, the
// standardized identifier length, tolerating prefixes and separators.
func NormalizeCode(code string) string {
	var digits []rune
	for _, r := range code {
		if r >= '0' && r <= '9' {
			digits = append(digits, r)
		}
	}
	if len(digits) > 13 {
		digits = digits[len(digits)-13:]
	}
	return string(digits)
}
