package models

import (
	"strings"
	"time"

	"github.com/lib/pq"
)

// Chat is a per-program conversation. Membership is a fixed set of
// case-normalized emails and never changes after creation; exactly the
// members may read and write messages.
type Chat struct {
	ID           string         `db:"id" json:"id"`
	Users        pq.StringArray `db:"users" json:"users"`
	ProgramID    string         `db:"program_id" json:"program_id"`
	ProgramTitle string         `db:"program_title" json:"program_title"`
	LastMessage  string         `db:"last_message" json:"last_message"`
	CreatedAt    time.Time      `db:"created_at" json:"created_at"`
}

// HasMember reports membership by case-insensitive email comparison.
func (c Chat) HasMember(email string) bool {
	needle := NormalizeEmail(email)
	for _, u := range c.Users {
		if NormalizeEmail(u) == needle {
			return true
		}
	}
	return false
}

// NormalizeEmail lowercases and trims an identity so that comparisons and
// stored member lists agree.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizeEmails returns the normalized copy of a member list.
func NormalizeEmails(emails []string) []string {
	out := make([]string, 0, len(emails))
	for _, e := range emails {
		if n := NormalizeEmail(e); n != "" {
			out = append(out, n)
		}
	}
	return out
}
