package pipeline

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/brettboylen/linkedin-agent/models"
)

// MinCommentLength is the shortest comment worth posting, in characters
const MinCommentLength = 10

var (
	reactionLine = regexp.MustCompile(`(?im)^Reaction:\s*(\w+)`)
	commentLine  = regexp.MustCompile(`(?ims)^Comment:\s*(.*)`)
	leadingLine  = regexp.MustCompile(`(?im)^Reaction:\s*\w+\s*`)
)

// ParseGenerated extracts the reaction and comment from raw generator output.
// Unknown or missing reactions fall back to Like. The second return value is
// false when no usable comment could be recovered.
func ParseGenerated(raw string) (models.GeneratedContent, bool) {
	content := models.GeneratedContent{Reaction: models.ReactionLike}

	if m := reactionLine.FindStringSubmatch(raw); m != nil {
		if reaction, ok := models.ParseReaction(m[1]); ok {
			content.Reaction = reaction
		}
	}

	if m := commentLine.FindStringSubmatch(raw); m != nil {
		content.CommentText = strings.TrimSpace(m[1])
	} else {
		content.CommentText = strings.TrimSpace(stripFirst(leadingLine, raw))
	}

	return content, usableComment(content.CommentText)
}

func usableComment(comment string) bool {
	if utf8.RuneCountInString(comment) < MinCommentLength {
		return false
	}
	if strings.HasPrefix(comment, "Error:") {
		return false
	}
	return !strings.Contains(strings.ToLower(comment), "unable to comment")
}

// stripFirst removes the first match of re from s
func stripFirst(re *regexp.Regexp, s string) string {
	loc := re.FindStringIndex(s)
	if loc == nil {
		return s
	}
	return s[:loc[0]] + s[loc[1]:]
}
