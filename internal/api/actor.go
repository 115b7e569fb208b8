// File path: internal/api/actor.go
package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/civicworks/progressd/internal/report"
)

// Actor identity headers set by the upstream authentication layer. Session
// establishment is not this service's concern; it only requires that every
// mutating request names its actor explicitly.
const (
	headerActorID     = "X-Actor-Id"
	headerActorAgency = "X-Actor-Agency"
	headerActorAdmin  = "X-Actor-Admin"
)

var errNoActor = errors.New("actor identity required")

func actorFromRequest(r *http.Request) (report.Actor, error) {
	actor := report.Actor{
		UserID:   strings.TrimSpace(r.Header.Get(headerActorID)),
		AgencyID: strings.TrimSpace(r.Header.Get(headerActorAgency)),
	}
	if admin := strings.TrimSpace(r.Header.Get(headerActorAdmin)); admin != "" {
		if parsed, err := strconv.ParseBool(admin); err == nil {
			actor.Admin = parsed
		}
	}
	if actor.UserID == "" {
		return report.Actor{}, errNoActor
	}
	return actor, nil
}
