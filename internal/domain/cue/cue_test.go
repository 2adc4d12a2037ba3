package cue

import (
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCue_Validate(t *testing.T) {
	tests := []struct {
		name     string
		cue      Cue
		wantCode string
	}{
		{
			name: "valid single",
			cue:  Cue{ID: "a", Kind: KindSingle, FilePath: "/a.mp3", Volume: 1},
		},
		{
			name: "empty kind treated as single",
			cue:  Cue{ID: "a", FilePath: "/a.mp3", Volume: 0.5},
		},
		{
			name:     "missing id",
			cue:      Cue{Kind: KindSingle, FilePath: "/a.mp3"},
			wantCode: CodeMissingID,
		},
		{
			name:     "single without file",
			cue:      Cue{ID: "a", Kind: KindSingle},
			wantCode: CodeMissingFilePath,
		},
		{
			name:     "empty playlist",
			cue:      Cue{ID: "p", Kind: KindPlaylist},
			wantCode: CodeEmptyPlaylist,
		},
		{
			name: "playlist item without path",
			cue: Cue{ID: "p", Kind: KindPlaylist, Items: []PlaylistItem{
				{ID: "1", Path: "/1.mp3"},
				{ID: "2"},
			}},
			wantCode: CodeItemMissingPath,
		},
		{
			name:     "unknown kind",
			cue:      Cue{ID: "x", Kind: "video"},
			wantCode: CodeUnknownKind,
		},
		{
			name:     "volume above one",
			cue:      Cue{ID: "a", FilePath: "/a.mp3", Volume: 1.5},
			wantCode: CodeInvalidVolume,
		},
		{
			name:     "trim end before start",
			cue:      Cue{ID: "a", FilePath: "/a.mp3", TrimStart: 5 * time.Second, TrimEnd: 2 * time.Second},
			wantCode: CodeInvalidTrim,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cue.Validate()
			if tt.wantCode == "" {
				assert.NoError(t, err)
				return
			}
			var invalid *InvalidError
			require.True(t, errors.As(err, &invalid))
			assert.Equal(t, tt.wantCode, invalid.Code)
		})
	}
}

func TestCue_CloneIsIndependent(t *testing.T) {
	fade := 2 * time.Second
	orig := &Cue{
		ID:     "p",
		Kind:   KindPlaylist,
		Items:  []PlaylistItem{{ID: "1", Path: "/1.mp3", Name: "One"}},
		FadeIn: &fade,
	}

	cp := orig.Clone()
	cp.Items[0].Name = "Changed"
	*cp.FadeIn = time.Second

	assert.Equal(t, "One", orig.Items[0].Name)
	assert.Equal(t, 2*time.Second, *orig.FadeIn)
}

func TestRetrigger_Valid(t *testing.T) {
	for _, r := range Retriggers {
		assert.True(t, r.Valid(), r)
	}
	assert.False(t, Retrigger("explode").Valid())
	assert.True(t, PlayModeStopAndCueNext.Valid())
	assert.False(t, PlayMode("").Valid())
}

func TestCue_DisplayNameAndItemIndex(t *testing.T) {
	c := &Cue{ID: "p", Items: []PlaylistItem{{ID: "1", Name: "One"}, {ID: "2", Name: "Two"}}}
	assert.Equal(t, "p", c.DisplayName())
	c.Name = "Pre-show"
	assert.Equal(t, "Pre-show", c.DisplayName())

	assert.Equal(t, 1, c.ItemIndex("2"))
	assert.Equal(t, -1, c.ItemIndex("9"))
}

func TestCue_Paths(t *testing.T) {
	single := Cue{ID: "a", FilePath: "/a.mp3"}
	assert.Equal(t, []string{"/a.mp3"}, single.Paths())

	list := Cue{ID: "p", Kind: KindPlaylist, Items: []PlaylistItem{{Path: "/1.mp3"}, {Path: "/2.mp3"}}}
	assert.Equal(t, []string{"/1.mp3", "/2.mp3"}, list.Paths())
}
