package policy

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewTableResolvesKnownChannels(t *testing.T) {
	table, err := NewTable(map[string]string{
		"VIDEOS_DB_ID":   "db-videos",
		"market-outlook": "folder-mo",
		"audit-process":  "folder-ap",
	})
	require.NoError(t, err)

	tests := []struct {
		channel        string
		wantAction     Action
		wantDest       string
		wantStatus     string
	}{
		{"market-outlook", ActionCreateNew, "db-videos", "complete"},
		{"audit-process", ActionUpdateExisting, "", "Complete"},
	}

	for _, tt := range tests {
		t.Run(tt.channel, func(t *testing.T) {
			p, ok := table.Resolve(tt.channel)
			require.True(t, ok)
			require.Equal(t, tt.wantAction, p.Action)
			require.Equal(t, tt.wantDest, p.DestinationID)
			require.Equal(t, tt.wantStatus, p.StatusValue)
		})
	}
}

func TestResolveUnknownChannel(t *testing.T) {
	table, err := NewTable(map[string]string{"VIDEOS_DB_ID": "db-videos"})
	require.NoError(t, err)

	_, ok := table.Resolve("does-not-exist")
	require.False(t, ok)
}

func TestAuditProcessOmitsVideoURL(t *testing.T) {
	table, err := NewTable(map[string]string{"VIDEOS_DB_ID": "db-videos"})
	require.NoError(t, err)

	p, ok := table.Resolve("audit-process")
	require.True(t, ok)
	_, found := p.FieldMap.Lookup("video_url")
	require.False(t, found, "chat-sourced channel should omit video_url per spec open question 2")
}

func TestFieldMapLookup(t *testing.T) {
	m := FieldMap{
		{LogicalKey: "title", Column: "Name", Type: FieldTitle},
	}
	e, ok := m.Lookup("title")
	require.True(t, ok)
	require.Equal(t, "Name", e.Column)

	_, ok = m.Lookup("missing")
	require.False(t, ok)
}

func TestValidateRequiresDestinationForCreateNew(t *testing.T) {
	p := ChannelPolicy{Name: "bad", Action: ActionCreateNew}
	require.Error(t, p.Validate())

	p.DestinationID = "dest"
	require.NoError(t, p.Validate())
}

func TestValidateRejectsDuplicateLogicalKeys(t *testing.T) {
	p := ChannelPolicy{
		Name:          "dup",
		Action:        ActionUpdateExisting,
		FieldMap: FieldMap{
			{LogicalKey: "title", Column: "A", Type: FieldTitle},
			{LogicalKey: "title", Column: "B", Type: FieldTitle},
		},
	}
	require.Error(t, p.Validate())
}
