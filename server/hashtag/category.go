package hashtag

import "strings"

// categorySeparators split a category into segments, e.g. "Pothole / Road Damage".
var categorySeparators = []string{" / ", " - "}

// categoryTags extracts hashtags from a report category.
//
// Algorithm:
//  1. Split the category on " / " and " - "
//  2. For each segment:
//     - Create hashtags for every word except "and"
//     - If the segment has exactly 3 words with "and" in the middle,
//     also create a combined CamelCase hashtag
//
// Examples:
//   - "Garbage Dump" -> #Garbage, #Dump
//   - "Pothole / Road Damage" -> #Pothole, #Road, #Damage
//   - "Water and Sewage" -> #Water, #Sewage, #WaterAndSewage
//   - "Mid-day Meal" -> #Midday, #Meal
func categoryTags(category string) []string {
	category = strings.TrimSpace(category)
	if category == "" {
		return nil
	}

	segments := []string{category}
	for _, sep := range categorySeparators {
		var split []string
		for _, segment := range segments {
			split = append(split, strings.Split(segment, sep)...)
		}
		segments = split
	}

	var allTags []string
	for _, segment := range segments {
		words := strings.Fields(segment)
		if len(words) == 0 {
			continue
		}

		for _, word := range words {
			if strings.EqualFold(word, "and") {
				continue
			}
			if tag := capitalizeFirst(word); tag != "" {
				allTags = append(allTags, "#"+tag)
			}
		}

		if len(words) == 3 && strings.EqualFold(words[1], "and") {
			combined := capitalizeFirst(words[0]) + "And" + capitalizeFirst(words[2])
			allTags = append(allTags, "#"+combined)
		}
	}

	return allTags
}
