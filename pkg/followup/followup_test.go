package followup

import (
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agency-tracker/pkg/model"
)

func TestNormalizePhoneMY(t *testing.T) {
	tests := map[string]string{
		"":                 "",
		"   ":              "",
		"012-345 6789":     "+60123456789",
		"60123456789":      "+60123456789",
		"+6012 3456789":    "+60123456789",
		"+44 20 7946 0000": "+442079460000",
		"123456":           "123456",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizePhoneMY(in), "input %q", in)
	}
}

func TestWhatsAppLink(t *testing.T) {
	assert.Equal(t, "", WhatsAppLink("", "hello"))

	link := WhatsAppLink("012-3456789", "hi there & bye")
	require.True(t, strings.HasPrefix(link, "https://wa.me/60123456789?text="))

	u, err := url.Parse(link)
	require.NoError(t, err)
	assert.Equal(t, "hi there & bye", u.Query().Get("text"))
}

func TestStatusCheckMessage(t *testing.T) {
	c := Context{
		Assignee:   "Farid",
		Client:     "Kedai Kopi",
		Project:    "Raya",
		Task:       "Collect logo",
		Status:     model.StatusBlocked,
		Due:        "2026-03-01",
		LastUpdate: time.Date(2026, 2, 27, 9, 0, 0, 0, time.UTC),
	}
	msg := StatusCheckMessage(c)
	assert.Contains(t, msg, "Hi Farid,")
	assert.Contains(t, msg, "Service: -")
	assert.Contains(t, msg, "Blocked reason: (not set)")
	assert.Contains(t, msg, "Due: 2026-03-01")
	assert.Contains(t, msg, "Last update: 2026-02-27")

	c.Status = model.StatusTodo
	assert.NotContains(t, StatusCheckMessage(c), "Blocked reason")
}

func TestOverdueAndStaleMessages(t *testing.T) {
	c := Context{Task: "Launch campaign"}
	overdue := OverdueMessage(c)
	assert.Contains(t, overdue, "Hi team,")
	assert.Contains(t, overdue, "Due: -")
	assert.Contains(t, overdue, "Client: -")

	stale := StaleMessage(c)
	assert.Contains(t, stale, "Last update: -")
	assert.Contains(t, stale, "Task: Launch campaign")
}
