package settings

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/quorum/internal/entity"
	"github.com/roach88/quorum/internal/store"
)

func setupTestStore(t *testing.T) *store.Store {
	t.Helper()
	dir := t.TempDir()
	s, err := store.Open(dir + "/test.db")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestDefaults(t *testing.T) {
	v := Defaults()

	assert.Equal(t, "en", v.Language)
	assert.True(t, v.PartialResults)
	assert.False(t, v.ActiveVotesOnly)
	assert.False(t, v.UserExplicitlyEdited)
}

func TestMerge_Incremental(t *testing.T) {
	v := Merge(Defaults(), Update{KeyLanguage: "cs"})
	v = Merge(v, Update{KeyPartialResults: "false"})

	assert.Equal(t, "cs", v.Language)
	assert.False(t, v.PartialResults)
	// Everything else unchanged from defaults
	assert.False(t, v.ActiveVotesOnly)
	assert.False(t, v.UserOptedIntoDirectChannel)
}

func TestMerge_DoesNotMutateBase(t *testing.T) {
	base := Defaults()
	_ = Merge(base, Update{KeyLanguage: "de", KeyPartialResults: "no"})

	assert.Equal(t, "en", base.Language)
	assert.True(t, base.PartialResults)
}

func TestMerge_NormalizesBoolSpellings(t *testing.T) {
	tests := []struct {
		raw  string
		want bool
	}{
		{"yes", true},
		{"Yes", true},
		{"true", true},
		{"1", true},
		{"no", false},
		{"FALSE", false},
		{"0", false},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			v := Merge(Defaults(), Update{KeyActiveVotesOnly: tt.raw})
			assert.Equal(t, tt.want, v.ActiveVotesOnly)
		})
	}
}

func TestMerge_UnparseableBoolKeepsBase(t *testing.T) {
	v := Merge(Defaults(), Update{KeyPartialResults: "maybe"})
	assert.True(t, v.PartialResults)
}

func TestMerge_CanonicalizesLanguage(t *testing.T) {
	v := Merge(Defaults(), Update{KeyLanguage: "CS"})
	assert.Equal(t, "cs", v.Language)

	v = Merge(v, Update{KeyLanguage: "###"})
	assert.Equal(t, "cs", v.Language)
}

func TestMerge_IgnoresUnknownKeys(t *testing.T) {
	v := Merge(Defaults(), Update{"favouriteColour": "green"})
	assert.Equal(t, Defaults(), v)
}

func TestRecord_Decode_RoundTrip(t *testing.T) {
	v := Values{
		Language:             "cs",
		PartialResults:       false,
		ActiveVotesOnly:      true,
		UserExplicitlyEdited: true,
		LastSavedAt:          time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
	}

	rec := Record("user-1", v)
	assert.Equal(t, entity.KindSettings, rec.Kind)

	decoded := Decode(&rec)
	assert.Equal(t, v, decoded)
}

func TestResolver_RoomScope_DefaultedWhenAbsent(t *testing.T) {
	r := NewResolver(setupTestStore(t))

	v, err := r.Resolve(context.Background(), "room-1", "user-1")
	require.NoError(t, err)
	assert.Equal(t, Defaults(), v)
}

func TestResolver_SaveScope_MergesOverStored(t *testing.T) {
	r := NewResolver(setupTestStore(t))
	ctx := context.Background()

	_, err := r.SaveScope(ctx, "room-1", Update{KeyLanguage: "cs"})
	require.NoError(t, err)

	v, err := r.SaveScope(ctx, "room-1", Update{KeyPartialResults: "no"})
	require.NoError(t, err)

	assert.Equal(t, "cs", v.Language)
	assert.False(t, v.PartialResults)
	assert.False(t, v.LastSavedAt.IsZero())
}

func TestResolver_UserScopeOverridesRoom(t *testing.T) {
	s := setupTestStore(t)
	r := NewResolver(s)
	fixed := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	r.SetClock(func() time.Time { return fixed })
	ctx := context.Background()

	_, err := r.SaveScope(ctx, "room-1", Update{KeyLanguage: "en"})
	require.NoError(t, err)
	_, err = r.SaveScope(ctx, "user-1", Update{
		KeyLanguage:             "cs",
		KeyUserExplicitlyEdited: "true",
	})
	require.NoError(t, err)

	v, err := r.Resolve(ctx, "room-1", "user-1")
	require.NoError(t, err)
	assert.Equal(t, "cs", v.Language)

	// Room scope was rewritten to match the participant's preference
	room, err := r.Scope(ctx, "room-1")
	require.NoError(t, err)
	assert.Equal(t, "cs", room.Language)

	// A later actor with no personal settings sees the updated room scope
	v, err = r.Resolve(ctx, "room-1", "user-2")
	require.NoError(t, err)
	assert.Equal(t, "cs", v.Language)
}

func TestResolver_UserScopeWithoutEditFlagIsIgnored(t *testing.T) {
	r := NewResolver(setupTestStore(t))
	ctx := context.Background()

	_, err := r.SaveScope(ctx, "user-1", Update{KeyLanguage: "cs"})
	require.NoError(t, err)

	v, err := r.Resolve(ctx, "room-1", "user-1")
	require.NoError(t, err)
	assert.Equal(t, "en", v.Language)
}
