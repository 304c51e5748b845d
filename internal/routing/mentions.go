package routing

import (
	"strings"

	"github.com/google/uuid"
)

// ExtractMentions returns the ids of roster bots addressed as "@Name" in text,
// in roster order without repeats. Matching is a case-sensitive substring
// test, so "@Al" also matches inside "@Alice".
func ExtractMentions(text string, roster []Bot) []uuid.UUID {
	var ids []uuid.UUID
	seen := make(map[uuid.UUID]bool, len(roster))
	for _, b := range roster {
		if b.Name == "" || seen[b.ID] {
			continue
		}
		if strings.Contains(text, "@"+b.Name) {
			seen[b.ID] = true
			ids = append(ids, b.ID)
		}
	}
	return ids
}
