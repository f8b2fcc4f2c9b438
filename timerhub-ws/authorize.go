package timerhubws

import (
	"time"

	"github.com/timerhub/timerhub/timerhub-ws/timerdao"
)

// AuthorizeUpdate decides whether a requested timer update is allowed and,
// if so, produces the record to persist. It is pure: no store access, so the
// ownership rules are testable in isolation.
//
// A fresh id makes the requester the owner; an existing timer may only be
// updated by its owner. The owner is immutable: whatever userId the payload
// carries is ignored. Omitted name/duration fields retain the stored value
// (zero on create); endTime always takes the payload value, nil included,
// since pausing a timer clears its end time.
func AuthorizeUpdate(existing *timerdao.Timer, requester string, p TimerPayload) (timerdao.Timer, error) {
	if requester == "" {
		return timerdao.Timer{}, &ValidationError{Reason: "missing requesting user"}
	}
	if p.ID == "" {
		return timerdao.Timer{}, &ValidationError{Reason: "missing timer id"}
	}
	if existing != nil && existing.OwnerUserID != requester {
		return timerdao.Timer{}, &AuthorizationError{TimerID: p.ID, UserID: requester}
	}

	next := timerdao.Timer{ID: p.ID, OwnerUserID: requester}
	if existing != nil {
		next = *existing
	}
	if p.Name != nil {
		next.Name = *p.Name
	}
	if p.TotalDuration != nil {
		next.TotalMs = *p.TotalDuration
	}
	if p.RemainingDuration != nil {
		next.RemainingMs = *p.RemainingDuration
	}
	next.EndTime = p.EndTime
	next.UpdatedAt = time.Now().Unix()
	return next, nil
}

// DiffShares reconciles a requested share list against the stored one.
// toAdd is requested minus current, toRemove is current minus requested.
func DiffShares(current, requested []string) (toAdd, toRemove []string) {
	currentSet := make(map[string]bool, len(current))
	for _, userID := range current {
		currentSet[userID] = true
	}
	requestedSet := make(map[string]bool, len(requested))
	for _, userID := range requested {
		if userID == "" || requestedSet[userID] {
			continue
		}
		requestedSet[userID] = true
		if !currentSet[userID] {
			toAdd = append(toAdd, userID)
		}
	}
	for _, userID := range current {
		if !requestedSet[userID] {
			toRemove = append(toRemove, userID)
		}
	}
	return toAdd, toRemove
}

// Recipients builds the deduplicated recipient user set for a broadcast:
// the owner plus every user in the given groups. Users removed from a share
// list still belong here so their clients receive one final notice.
func Recipients(owner string, groups ...[]string) []string {
	seen := map[string]bool{owner: true}
	recipients := []string{owner}
	for _, group := range groups {
		for _, userID := range group {
			if userID == "" || seen[userID] {
				continue
			}
			seen[userID] = true
			recipients = append(recipients, userID)
		}
	}
	return recipients
}
