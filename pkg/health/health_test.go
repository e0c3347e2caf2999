package health

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/cravepos/brigade/pkg/types"
)

func TestClassify(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		rawStatus string
		lastSeen  time.Time
		wantClass Class
		wantAge   int64
	}{
		{
			name:      "fresh heartbeat reporting online",
			rawStatus: types.NodeStatusOnline,
			lastSeen:  now,
			wantClass: ClassOnline,
			wantAge:   0,
		},
		{
			name:      "heartbeat at the online boundary",
			rawStatus: types.NodeStatusOnline,
			lastSeen:  now.Add(-120 * time.Second),
			wantClass: ClassOnline,
			wantAge:   120,
		},
		{
			name:      "fresh heartbeat reporting degraded",
			rawStatus: "DEGRADED",
			lastSeen:  now.Add(-5 * time.Second),
			wantClass: ClassStale,
			wantAge:   5,
		},
		{
			name:      "overdue heartbeat",
			rawStatus: types.NodeStatusOnline,
			lastSeen:  now.Add(-150 * time.Second),
			wantClass: ClassStale,
			wantAge:   150,
		},
		{
			name:      "heartbeat at the stale boundary",
			rawStatus: types.NodeStatusOnline,
			lastSeen:  now.Add(-900 * time.Second),
			wantClass: ClassStale,
			wantAge:   900,
		},
		{
			name:      "heartbeat beyond the stale window",
			rawStatus: types.NodeStatusOnline,
			lastSeen:  now.Add(-1000 * time.Second),
			wantClass: ClassOffline,
			wantAge:   1000,
		},
		{
			name:      "never heartbeated",
			rawStatus: "",
			lastSeen:  time.Time{},
			wantClass: ClassOffline,
			wantAge:   0,
		},
		{
			name:      "edge clock ahead of cloud clamps to zero",
			rawStatus: types.NodeStatusOnline,
			lastSeen:  now.Add(30 * time.Second),
			wantClass: ClassOnline,
			wantAge:   0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			class, age := Classify(tt.rawStatus, tt.lastSeen, now)
			assert.Equal(t, tt.wantClass, class)
			assert.Equal(t, tt.wantAge, age)
		})
	}
}

func TestClassifyDegradesWithoutWrites(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	lastSeen := start

	class, _ := Classify(types.NodeStatusOnline, lastSeen, start.Add(time.Minute))
	assert.Equal(t, ClassOnline, class)

	class, _ = Classify(types.NodeStatusOnline, lastSeen, start.Add(5*time.Minute))
	assert.Equal(t, ClassStale, class)

	class, _ = Classify(types.NodeStatusOnline, lastSeen, start.Add(20*time.Minute))
	assert.Equal(t, ClassOffline, class)
}
