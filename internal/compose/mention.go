package compose

import (
	"strings"
	"unicode"

	"github.com/chatsync/internal/model"
)

// Mentions is the resolved mention metadata attached to an outgoing
// message payload.
type Mentions struct {
	UserIDs []string
	All     bool
}

// ParseMentions scans text once for @all and @<name-fragment> tokens.
// Targeted tokens resolve against the participant list case-insensitively:
// exact match first, then prefix, then substring, first hit wins.
// Unresolved tokens stay literal text and produce no mention.
func ParseMentions(text string, participants []model.UserPublic) Mentions {
	var out Mentions
	seen := make(map[string]struct{})

	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		if runes[i] != '@' {
			continue
		}
		start := i + 1
		end := start
		for end < len(runes) && isNameRune(runes[end]) {
			end++
		}
		if end == start {
			continue
		}
		token := string(runes[start:end])
		i = end - 1

		if strings.EqualFold(token, "all") {
			out.All = true
			continue
		}
		if id := resolveMention(token, participants); id != "" {
			if _, dup := seen[id]; !dup {
				seen[id] = struct{}{}
				out.UserIDs = append(out.UserIDs, id)
			}
		}
	}
	return out
}

func isNameRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '.' || r == '-'
}

func resolveMention(token string, participants []model.UserPublic) string {
	lower := strings.ToLower(token)
	for _, p := range participants {
		if strings.ToLower(p.Username) == lower {
			return p.ID
		}
	}
	for _, p := range participants {
		if strings.HasPrefix(strings.ToLower(p.Username), lower) {
			return p.ID
		}
	}
	for _, p := range participants {
		if strings.Contains(strings.ToLower(p.Username), lower) {
			return p.ID
		}
	}
	return ""
}
