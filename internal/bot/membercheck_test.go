package bot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/veilbreaker/sheetgate/internal/enforcer"
)

func TestStripTrailingTag(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "tag stripped", in: "handle@tag [afk]", want: "handle@tag"},
		{name: "no tag", in: "handle@tag", want: "handle@tag"},
		{name: "bracket only name untouched", in: "[afk]", want: "[afk]"},
		{name: "inner brackets kept", in: "a[b]c", want: "a[b]c"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, stripTrailingTag(tt.in))
		})
	}
}

func TestGuildNames(t *testing.T) {
	t.Parallel()

	members := []*enforcer.Member{
		{DisplayName: "alpha@clan [lead]", Username: "alpha_raw"},
		{DisplayName: "beta@clan", Username: "beta_raw"},
	}

	names := guildNames(members)

	assert.Contains(t, names, "alpha@clan [lead]")
	assert.Contains(t, names, "alpha_raw")
	assert.Contains(t, names, "alpha@clan")
	assert.Contains(t, names, "beta@clan")
	assert.NotContains(t, names, "beta@clan [lead]")
}

func TestMissingFromRoster(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		roster []string
		guild  []string
		want   []string
	}{
		{
			name:   "all present",
			roster: []string{"alpha@clan", "beta@clan"},
			guild:  []string{"alpha@clan", "beta@clan"},
			want:   nil,
		},
		{
			name:   "case insensitive match",
			roster: []string{"Alpha@Clan"},
			guild:  []string{"alpha@clan"},
			want:   nil,
		},
		{
			name:   "guild name decorated around roster name",
			roster: []string{"alpha@clan"},
			guild:  []string{"xx alpha@clan xx"},
			want:   nil,
		},
		{
			name:   "roster name decorated around guild name",
			roster: []string{"alpha@clan (inactive)"},
			guild:  []string{"alpha@clan"},
			want:   nil,
		},
		{
			name:   "absent member reported in sheet order",
			roster: []string{"gamma@clan", "alpha@clan", "delta@clan"},
			guild:  []string{"alpha@clan"},
			want:   []string{"gamma@clan", "delta@clan"},
		},
		{
			name:   "whitespace trimmed before compare",
			roster: []string{"  alpha@clan  ", ""},
			guild:  []string{"alpha@clan"},
			want:   nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, missingFromRoster(tt.roster, tt.guild))
		})
	}
}
