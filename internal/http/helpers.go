package http

import (
	"net/http"
	"strings"

	"churchledger/internal/auth"
	"churchledger/internal/core"
)

// sanitizeInput trims and drops control characters except tab and newlines.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

// actorFrom returns the authenticated actor. The auth middleware guarantees
// one on every /api route.
func actorFrom(r *http.Request) core.Actor {
	a, _ := auth.ActorFrom(r.Context())
	return a
}

func sanitizeDraft(d *core.RecordDraft) {
	d.MessageTitle = sanitizeInput(d.MessageTitle)
	d.Preacher = sanitizeInput(d.Preacher)
	d.ZonalPastor = sanitizeInput(d.ZonalPastor)
	for i, c := range d.Counters {
		d.Counters[i] = sanitizeInput(c)
	}
}
