package health

import (
	"time"

	"github.com/cravepos/brigade/pkg/types"
)

// Class is the derived health classification of a node.
type Class string

const (
	// ClassOnline means the node heartbeated recently and reported itself healthy.
	ClassOnline Class = "ONLINE"

	// ClassStale means the node heartbeated within the stale window but is
	// either overdue or reported a non-ONLINE raw status.
	ClassStale Class = "STALE"

	// ClassOffline means the node has not heartbeated within the stale window,
	// or has never heartbeated at all.
	ClassOffline Class = "OFFLINE"
)

const (
	// OnlineWindow is the maximum heartbeat age for a node to be ONLINE.
	OnlineWindow = 120 * time.Second

	// StaleWindow is the maximum heartbeat age for a node to be STALE.
	// Beyond this the node is OFFLINE.
	StaleWindow = 900 * time.Second
)

// Classify derives a node's health class from its last self-reported status
// and the time of its last heartbeat. Classification is never stored; it is
// computed on read so a node that silently dies degrades without any write.
//
// A node is ONLINE only when its heartbeat is fresh AND its own last report
// was ONLINE; a node reporting a degraded status is at best STALE no matter
// how recent the heartbeat.
//
// The returned age is in whole seconds, clamped at zero when lastSeenAt sits
// ahead of now (clock skew between cloud and edge).
func Classify(rawStatus string, lastSeenAt time.Time, now time.Time) (Class, int64) {
	if lastSeenAt.IsZero() {
		return ClassOffline, 0
	}

	age := now.Sub(lastSeenAt)
	if age < 0 {
		age = 0
	}
	seconds := int64(age / time.Second)

	switch {
	case age <= OnlineWindow && rawStatus == types.NodeStatusOnline:
		return ClassOnline, seconds
	case age <= StaleWindow:
		return ClassStale, seconds
	default:
		return ClassOffline, seconds
	}
}
