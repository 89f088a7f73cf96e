// Package followup builds WhatsApp reminder links for task owners.
package followup

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"agency-tracker/pkg/model"
)

// NormalizePhoneMY converts a Malaysian phone number to E.164 form.
// Numbers already starting with + are kept; unknown shapes are returned as is.
func NormalizePhoneMY(phone string) string {
	p := strings.NewReplacer(" ", "", "\t", "", "-", "").Replace(strings.TrimSpace(phone))
	switch {
	case p == "":
		return ""
	case strings.HasPrefix(p, "+"):
		return p
	case strings.HasPrefix(p, "0"):
		return "+60" + p[1:]
	case strings.HasPrefix(p, "60"):
		return "+" + p
	default:
		return p
	}
}

// WhatsAppLink returns a wa.me click-to-chat URL, or "" when there is no phone.
func WhatsAppLink(phone, message string) string {
	p := strings.TrimPrefix(NormalizePhoneMY(phone), "+")
	if p == "" {
		return ""
	}
	text := strings.ReplaceAll(url.QueryEscape(message), "+", "%20")
	return "https://wa.me/" + p + "?text=" + text
}

// Context carries the facts a reminder message mentions.
type Context struct {
	Assignee      string
	Client        string
	Project       string
	Service       string
	Task          string
	Status        model.TaskStatus
	BlockedReason string
	Due           model.Date
	LastUpdate    time.Time
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

func (c Context) greeting(lead string) string {
	name := c.Assignee
	if name == "" {
		name = "team"
	}
	return fmt.Sprintf("Hi %s, %s 🙏\n\n", name, lead)
}

func lastUpdate(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return model.DateOf(t).String()
}

// OverdueMessage asks for an update on a task past its due date.
func OverdueMessage(c Context) string {
	var b strings.Builder
	b.WriteString(c.greeting("this task is overdue"))
	fmt.Fprintf(&b, "Client: %s\nProject: %s\nTask: %s\nDue: %s\n\n", orDash(c.Client), orDash(c.Project), c.Task, c.Due)
	b.WriteString("Could you update the status now (TODO / IN_PROGRESS / BLOCKED / DONE) and share the next action?")
	return b.String()
}

// StaleMessage asks for an update on a task nobody has touched recently.
func StaleMessage(c Context) string {
	var b strings.Builder
	b.WriteString(c.greeting("could you give a quick update on this task"))
	fmt.Fprintf(&b, "Client: %s\nProject: %s\nTask: %s\nLast update: %s\n\n", orDash(c.Client), orDash(c.Project), c.Task, lastUpdate(c.LastUpdate))
	b.WriteString("What's the current status and next action?")
	return b.String()
}

// StatusCheckMessage is the general reminder sent from a project's task list.
func StatusCheckMessage(c Context) string {
	var b strings.Builder
	b.WriteString(c.greeting("could you update the status of this task"))
	fmt.Fprintf(&b, "Client: %s\nProject: %s\nService: %s\nTask: %s\nStatus: %s\n",
		orDash(c.Client), orDash(c.Project), orDash(c.Service), c.Task, c.Status)
	if c.Status == model.StatusBlocked {
		reason := c.BlockedReason
		if reason == "" {
			reason = "(not set)"
		}
		fmt.Fprintf(&b, "Blocked reason: %s\n", reason)
	}
	fmt.Fprintf(&b, "Due: %s\nLast update: %s\n\n", c.Due, lastUpdate(c.LastUpdate))
	b.WriteString("What's the current status and next action?")
	return b.String()
}
