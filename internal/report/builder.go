// Package report turns fetched board, mail and chat data into the plain-text
// report the analysis agent reads.
package report

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/vdavid/statusreport/backend/internal/models"
)

const previewLength = 150

var (
	blockerPattern = wordPattern(`blocker|blocked|stuck`)
	urgentPattern  = wordPattern(`urgent|asap`)
	actionPattern  = wordPattern(`action|todo|task|follow[- ]?up`)
)

type Section struct {
	Lines []string
	Count int
}

func (s Section) String() string {
	return strings.Join(s.Lines, "\n")
}

type Report struct {
	Board        Section
	Mail         Section
	Chat         Section
	OverdueCount int
}

// Raw joins the three sections with a blank line between them.
func (r Report) Raw() string {
	return strings.Join([]string{r.Board.String(), r.Mail.String(), r.Chat.String()}, "\n\n")
}

// Build assembles the report. It is pure: now decides which cards are overdue.
func Build(snapshot *models.BoardSnapshot, mailLabel string, mail []models.MailMessage, chat []models.ChatMessage, now time.Time) Report {
	board, overdue := buildBoard(snapshot, now)
	return Report{
		Board:        board,
		Mail:         buildMail(mailLabel, mail),
		Chat:         buildChat(chat),
		OverdueCount: overdue,
	}
}

func buildBoard(snapshot *models.BoardSnapshot, now time.Time) (Section, int) {
	lines := []string{"**Trello Board Status:**"}

	if snapshot == nil || len(snapshot.Lists) == 0 {
		lines = append(lines, "  _(Could not fetch Trello lists)_")
		return Section{Lines: lines}, 0
	}

	var overdue []string
	total := 0
	for _, list := range snapshot.Lists {
		name := list.Name
		if name == "" {
			name = "Unknown"
		}
		cards := snapshot.CardsByList[list.ID]
		total += len(cards)
		lines = append(lines, fmt.Sprintf("- **%s**: %d card(s)", name, len(cards)))

		for _, card := range cards {
			if !card.IsOverdue(now) {
				continue
			}
			cardName := card.Name
			if cardName == "" {
				cardName = "Unnamed Card"
			}
			overdue = append(overdue, fmt.Sprintf("- '%s' in list '%s'", cardName, name))
		}
	}

	lines = append(lines, fmt.Sprintf("Total Cards: %d", total))
	if len(overdue) > 0 {
		lines = append(lines, "\n**🚨 Overdue Tasks:**")
		lines = append(lines, overdue...)
	} else {
		lines = append(lines, "\n**✅ No overdue tasks found.**")
	}

	return Section{Lines: lines, Count: total}, len(overdue)
}

func buildMail(label string, messages []models.MailMessage) Section {
	lines := []string{fmt.Sprintf("\n**Recent Email Updates (Label: %s):**", label)}

	if len(messages) == 0 {
		lines = append(lines, "  _(No unread emails found with the label or error fetching)_")
		return Section{Lines: lines}
	}

	for _, m := range messages {
		preview := Preview(strings.TrimSpace(m.Body))
		lines = append(lines, fmt.Sprintf("\n- **From:** %s\n  **Subject:** %s\n  **Preview:** %s", m.Sender, m.Subject, preview))
	}
	return Section{Lines: lines, Count: len(messages)}
}

func buildChat(messages []models.ChatMessage) Section {
	lines := []string{"**Recent Slack Messages (Filtered):**"}

	if len(messages) == 0 {
		lines = append(lines, "  _(No recent messages found or error fetching)_")
		return Section{Lines: lines}
	}

	for _, m := range messages {
		text := strings.TrimSpace(m.Text)
		lines = append(lines, fmt.Sprintf("- **%s**: %s%s", m.User, Preview(text), Tag(text)))
	}
	return Section{Lines: lines, Count: len(messages)}
}

// Preview keeps the first 150 characters and appends "..." only when it cut something.
func Preview(text string) string {
	if utf8.RuneCountInString(text) <= previewLength {
		return text
	}
	return string([]rune(text)[:previewLength]) + "..."
}

// wordPattern matches any of the alternatives as a whole word, treating Unicode
// letters and digits as word characters (RE2's \b only knows ASCII).
func wordPattern(alternatives string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)(?:^|[^\p{L}\p{N}_])(?:` + alternatives + `)(?:$|[^\p{L}\p{N}_])`)
}

// Tag flags a message as a blocker, urgent or an action item, in that priority.
func Tag(text string) string {
	switch {
	case blockerPattern.MatchString(text):
		return " [**BLOCKER?**]"
	case urgentPattern.MatchString(text):
		return " [**URGENT?**]"
	case actionPattern.MatchString(text):
		return " [**ACTION?**]"
	default:
		return ""
	}
}
