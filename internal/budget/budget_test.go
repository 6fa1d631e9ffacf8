package budget

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tempizhere/gotracker/internal/models"
)

func claimedItem(project, ip string) models.Item {
	now := time.Now()
	return models.Item{
		ProjectID:       project,
		DatetimeClaimed: &now,
		TamperKey:       "k",
		Username:        "worker",
		IPAddress:       ip,
	}
}

func TestRebuildCounts(t *testing.T) {
	b := New()

	projects := []models.Project{
		{Name: "tinyurl", Enabled: true, MaxNumItems: 10},
		{Name: "disabled", Enabled: false, MaxNumItems: 10},
	}
	items := []models.Item{
		{ProjectID: "tinyurl"},
		claimedItem("tinyurl", "10.0.0.1"),
		{ProjectID: "disabled"},
	}

	b.Rebuild(projects, items)

	pb, ok := b.Snapshot("tinyurl")
	require.True(t, ok)
	assert.Equal(t, int64(2), pb.Items)
	assert.Equal(t, int64(1), pb.Claims)
	assert.Contains(t, pb.IPAddresses, "10.0.0.1")

	_, ok = b.Snapshot("disabled")
	assert.False(t, ok)
}

func TestAvailableProject(t *testing.T) {
	tests := []struct {
		name          string
		project       models.Project
		items         []models.Item
		ip            string
		version       int
		clientVersion int
		wantOK        bool
	}{
		{
			name:    "unclaimed item available",
			project: models.Project{Name: "p", Enabled: true, MaxNumItems: 10},
			items:   []models.Item{{ProjectID: "p"}},
			ip:      "10.0.0.1",
			wantOK:  true,
		},
		{
			name:    "ip already holds claim",
			project: models.Project{Name: "p", Enabled: true, MaxNumItems: 10},
			items:   []models.Item{{ProjectID: "p"}, claimedItem("p", "10.0.0.1")},
			ip:      "10.0.0.1",
			wantOK:  false,
		},
		{
			name:    "pool fully claimed but below capacity",
			project: models.Project{Name: "p", Enabled: true, MaxNumItems: 10},
			items:   []models.Item{claimedItem("p", "10.0.0.2")},
			ip:      "10.0.0.1",
			wantOK:  true,
		},
		{
			name: "pool fully claimed at capacity",
			project: models.Project{Name: "p", Enabled: true, MaxNumItems: 2},
			items: []models.Item{
				claimedItem("p", "10.0.0.2"),
				claimedItem("p", "10.0.0.3"),
			},
			ip:     "10.0.0.1",
			wantOK: false,
		},
		{
			name:    "empty project never selected",
			project: models.Project{Name: "p", Enabled: true, Autoqueue: true, MaxNumItems: 10},
			ip:      "10.0.0.1",
			wantOK:  false,
		},
		{
			name:    "version below project minimum",
			project: models.Project{Name: "p", Enabled: true, MaxNumItems: 10, MinVersion: 5},
			items:   []models.Item{{ProjectID: "p"}},
			ip:      "10.0.0.1",
			version: 4,
			wantOK:  false,
		},
		{
			name:          "client version below project minimum",
			project:       models.Project{Name: "p", Enabled: true, MaxNumItems: 10, MinClientVersion: 3},
			items:         []models.Item{{ProjectID: "p"}},
			ip:            "10.0.0.1",
			clientVersion: 2,
			wantOK:        false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := New()
			b.Rebuild([]models.Project{tt.project}, tt.items)

			name, ok := b.AvailableProject(tt.ip, tt.version, tt.clientVersion)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.project.Name, name)
			}
		})
	}
}

func TestIsClaimsFull(t *testing.T) {
	b := New()
	assert.False(t, b.IsClaimsFull("10.0.0.1"))

	b.Rebuild(
		[]models.Project{
			{Name: "p1", Enabled: true, MaxNumItems: 10},
			{Name: "p2", Enabled: true, MaxNumItems: 10},
		},
		[]models.Item{claimedItem("p1", "10.0.0.1")},
	)

	assert.False(t, b.IsClaimsFull("10.0.0.1"))

	b.NoteClaim("p2", "10.0.0.1", false)
	assert.True(t, b.IsClaimsFull("10.0.0.1"))
	assert.False(t, b.IsClaimsFull("10.0.0.9"))
}

func TestIsClientOutdated(t *testing.T) {
	b := New()
	b.Rebuild([]models.Project{
		{Name: "p1", Enabled: true, MinVersion: 3, MinClientVersion: 2, MaxNumItems: 10},
	}, nil)

	assert.True(t, b.IsClientOutdated(2, 2))
	assert.True(t, b.IsClientOutdated(3, 1))
	assert.False(t, b.IsClientOutdated(3, 2))

	version, clientVersion := b.RequiredVersions()
	assert.Equal(t, 3, version)
	assert.Equal(t, 2, clientVersion)
}

func TestNoteClaimAndCheckin(t *testing.T) {
	b := New()
	b.Rebuild(
		[]models.Project{{Name: "p", Enabled: true, MaxNumItems: 10}},
		[]models.Item{{ProjectID: "p"}},
	)

	b.NoteClaim("p", "10.0.0.1", false)
	pb, ok := b.Snapshot("p")
	require.True(t, ok)
	assert.Equal(t, int64(1), pb.Items)
	assert.Equal(t, int64(1), pb.Claims)
	assert.Contains(t, pb.IPAddresses, "10.0.0.1")

	// Новый элемент, созданный продвижением курсора
	b.NoteClaim("p", "10.0.0.2", true)
	pb, _ = b.Snapshot("p")
	assert.Equal(t, int64(2), pb.Items)
	assert.Equal(t, int64(2), pb.Claims)

	b.NoteCheckin("p", "10.0.0.1")
	pb, _ = b.Snapshot("p")
	assert.Equal(t, int64(1), pb.Items)
	assert.Equal(t, int64(1), pb.Claims)
	assert.NotContains(t, pb.IPAddresses, "10.0.0.1")
}

func TestConcurrentAccess(t *testing.T) {
	b := New()
	b.Rebuild([]models.Project{{Name: "p", Enabled: true, MaxNumItems: 100}},
		[]models.Item{{ProjectID: "p"}})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			b.NoteClaim("p", "10.0.0.1", true)
		}()
		go func() {
			defer wg.Done()
			b.AvailableProject("10.0.0.2", 0, 0)
			b.Counts()
		}()
	}
	wg.Wait()

	pb, ok := b.Snapshot("p")
	require.True(t, ok)
	assert.Equal(t, int64(51), pb.Items)
	assert.Equal(t, int64(50), pb.Claims)
}
