package hashtag

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/biter777/countries"

	"github.com/mattermost/mattermost-plugin-civicsos/server/ledger"
)

// Indian state and union territory codes (ISO 3166-2:IN) to full names.
var indianStates = map[string]string{
	"AP": "Andhra Pradesh", "AR": "Arunachal Pradesh", "AS": "Assam", "BR": "Bihar",
	"CT": "Chhattisgarh", "GA": "Goa", "GJ": "Gujarat", "HR": "Haryana",
	"HP": "Himachal Pradesh", "JH": "Jharkhand", "KA": "Karnataka", "KL": "Kerala",
	"MP": "Madhya Pradesh", "MH": "Maharashtra", "MN": "Manipur", "ML": "Meghalaya",
	"MZ": "Mizoram", "NL": "Nagaland", "OD": "Odisha", "PB": "Punjab",
	"RJ": "Rajasthan", "SK": "Sikkim", "TN": "Tamil Nadu", "TG": "Telangana",
	"TR": "Tripura", "UP": "Uttar Pradesh", "UT": "Uttarakhand", "WB": "West Bengal",
	"AN": "Andaman and Nicobar Islands", "CH": "Chandigarh", "DH": "Dadra and Nagar Haveli and Daman and Diu",
	"DL": "Delhi", "JK": "Jammu and Kashmir", "LA": "Ladakh", "LD": "Lakshadweep", "PY": "Puducherry",
}

// statePinPattern matches a two-letter code followed by a word containing a digit.
// Examples: "TN 600001", "KA 560038"
var statePinPattern = regexp.MustCompile(`(?i)^([A-Za-z]{2})\s+\S*\d\S*$`)

// locationTags prefers the structured fields of a location and falls back to parsing
// the free-form address.
func locationTags(loc ledger.Location) []string {
	if loc.District == "" && loc.State == "" && loc.Country == "" {
		return extractPlaceTags(loc.Address)
	}

	var tags []string
	country := detectCountry(loc.Country)

	if loc.District != "" {
		tags = append(tags, "#"+camelCase(loc.District))
	}
	if loc.State != "" {
		tags = append(tags, "#"+camelCase(expandState(loc.State, country)))
	}
	if country != countries.Unknown {
		tags = append(tags, "#"+camelCase(country.String()))
	} else if loc.Country != "" {
		tags = append(tags, "#"+camelCase(loc.Country))
	}

	return tags
}

// extractPlaceTags extracts place hashtags from a free-form address.
//
// Heuristic:
//
// Step 1: Split by commas and clean each part
//   - Drop any part containing numbers (house numbers, PIN codes, coordinates)
//   - EXCEPTION: "XX 600001" pattern (state code + PIN) keeps only "XX"
//
// Step 2: Process based on number of non-empty parts remaining
//
//	Case A - Single part: "Chennai" or "IN"
//	  - A country name or code expands to the full country name
//	  - Anything else is used as-is in CamelCase
//
//	Case B - Two parts: "Anna Nagar, Chennai" or "Chennai, TN"
//	  - First part always becomes a hashtag
//	  - A two-letter Indian state code in second place is skipped ("TN" is also Tunisia)
//	  - Other two-letter codes expand only if they are countries
//	  - Longer second parts expand if they are countries, otherwise are used as-is
//
//	Case C - Three or more parts: "12 Link Road, Bandra, Mumbai, MH, India"
//	  - Only the last 3 parts are used, as City, State, Country
//	  - State codes expand when the country is India
//
// Returns nil if nothing usable is left.
func extractPlaceTags(address string) []string {
	if address == "" {
		return nil
	}

	var cleanedParts []string
	for _, part := range strings.Split(address, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		if matches := statePinPattern.FindStringSubmatch(part); matches != nil {
			cleanedParts = append(cleanedParts, matches[1])
			continue
		}

		if containsNumber(part) {
			continue
		}

		cleanedParts = append(cleanedParts, part)
	}

	switch len(cleanedParts) {
	case 0:
		return nil
	case 1:
		return handleSinglePart(cleanedParts[0])
	case 2:
		return handleTwoParts(cleanedParts[0], cleanedParts[1])
	default:
		startIdx := len(cleanedParts) - 3
		return handleThreeParts(cleanedParts[startIdx], cleanedParts[startIdx+1], cleanedParts[startIdx+2])
	}
}

func containsNumber(s string) bool {
	for _, r := range s {
		if unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

func handleSinglePart(part string) []string {
	if country := detectCountry(part); country != countries.Unknown {
		return []string{"#" + camelCase(country.String())}
	}
	return []string{"#" + camelCase(part)}
}

func handleTwoParts(first, second string) []string {
	tags := []string{"#" + camelCase(first)}

	if len(second) == 2 {
		if _, isState := indianStates[strings.ToUpper(second)]; isState {
			return tags
		}
		if country := detectCountry(second); country != countries.Unknown {
			tags = append(tags, "#"+camelCase(country.String()))
		}
		return tags
	}

	if country := detectCountry(second); country != countries.Unknown {
		tags = append(tags, "#"+camelCase(country.String()))
	} else {
		tags = append(tags, "#"+camelCase(second))
	}
	return tags
}

// handleThreeParts expects City, State, Country.
func handleThreeParts(city, state, countryPart string) []string {
	country := detectCountry(countryPart)

	tags := []string{
		"#" + camelCase(city),
		"#" + camelCase(expandState(state, country)),
	}

	if country != countries.Unknown {
		tags = append(tags, "#"+camelCase(country.String()))
	} else {
		tags = append(tags, "#"+camelCase(countryPart))
	}
	return tags
}

// detectCountry identifies a country from a name or an ISO code, case-insensitively.
func detectCountry(s string) countries.CountryCode {
	if s == "" {
		return countries.Unknown
	}
	return countries.ByName(s)
}

// expandState expands a two-letter Indian state code. Anything else is returned as-is.
func expandState(state string, country countries.CountryCode) string {
	if len(state) != 2 || country != countries.IN {
		return state
	}
	if fullName, ok := indianStates[strings.ToUpper(state)]; ok {
		return fullName
	}
	return state
}
