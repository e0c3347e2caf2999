package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/cravepos/brigade/pkg/storage"
	"github.com/cravepos/brigade/pkg/types"
)

const (
	defaultListLimit = 100
	maxListLimit     = 200
)

// parseStatuses parses a comma-separated status filter. Empty input means
// no filter.
func parseStatuses(raw string) ([]types.CommandStatus, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}

	var statuses []types.CommandStatus
	for _, part := range strings.Split(raw, ",") {
		status := types.CommandStatus(strings.ToUpper(strings.TrimSpace(part)))
		switch status {
		case types.CommandStatusPending, types.CommandStatusAcked, types.CommandStatusFailed:
			statuses = append(statuses, status)
		case "":
		default:
			return nil, errBadRequest("unknown command status %q", part)
		}
	}
	return statuses, nil
}

// parseLimit parses a limit query param, bounded to 1..200 with a default
// of 100.
func parseLimit(raw string) (int, error) {
	if strings.TrimSpace(raw) == "" {
		return defaultListLimit, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 1 {
		return 0, errBadRequest("limit must be a positive integer")
	}
	if n > maxListLimit {
		n = maxListLimit
	}
	return n, nil
}

// parseCommandFilter reads the status=, domain=, nodeId= and limit= query
// params shared by the command listing endpoints.
func parseCommandFilter(r *http.Request) (storage.CommandFilter, error) {
	q := r.URL.Query()

	statuses, err := parseStatuses(q.Get("status"))
	if err != nil {
		return storage.CommandFilter{}, err
	}
	limit, err := parseLimit(q.Get("limit"))
	if err != nil {
		return storage.CommandFilter{}, err
	}

	return storage.CommandFilter{
		Statuses: statuses,
		Domain:   strings.ToUpper(strings.TrimSpace(q.Get("domain"))),
		NodeID:   strings.TrimSpace(q.Get("nodeId")),
		Limit:    limit,
	}, nil
}

// parseBool parses flag-style query params; anything but explicit truth is
// false.
func parseBool(raw string) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(raw))
	return err == nil && v
}
