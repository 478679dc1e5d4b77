package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPageApplySchedule(t *testing.T) {
	now := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)

	tests := []struct {
		name      string
		page      Page
		changed   bool
		published bool
		archived  bool
		online    bool
	}{
		{"publish due", Page{Publishing: &past}, true, true, false, true},
		{"publish at exact time", Page{Publishing: &now}, true, true, false, true},
		{"publish later", Page{Publishing: &future}, false, false, false, false},
		{"already online", Page{State: PageOnline, Publishing: &past}, true, false, false, true},
		{"archive due", Page{State: PageOnline, Archiving: &past}, true, false, true, false},
		{"archive offline page", Page{Archiving: &past}, true, false, false, false},
		{"both due", Page{Publishing: &past, Archiving: &past}, true, true, true, false},
		{"deleted", Page{State: PageDeleted, Publishing: &past}, false, false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := tt.page
			changed, published, archived := p.ApplySchedule(now)
			assert.Equal(t, tt.changed, changed)
			assert.Equal(t, tt.published, published)
			assert.Equal(t, tt.archived, archived)
			assert.Equal(t, tt.online, p.IsOnline())
			if changed {
				assert.True(t, p.ModifiedAt.Equal(now))
			}
		})
	}
}
