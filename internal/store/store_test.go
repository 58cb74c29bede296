package store

import (
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestReactionDefaultsToNone(t *testing.T) {
	s := newTestStore(t)
	require.Equal(t, ReactionNone, s.Reaction("msg-1"))
}

func TestReactionsAreMutuallyExclusive(t *testing.T) {
	s := newTestStore(t)

	s.SetReaction("msg-1", ReactionLike)
	require.Equal(t, ReactionLike, s.Reaction("msg-1"))

	// A dislike replaces the like; a message never carries both.
	s.SetReaction("msg-1", ReactionDislike)
	require.Equal(t, ReactionDislike, s.Reaction("msg-1"))

	s.SetReaction("msg-1", ReactionNone)
	require.Equal(t, ReactionNone, s.Reaction("msg-1"))
}

func TestReactionsAreIndependentPerMessage(t *testing.T) {
	s := newTestStore(t)

	s.SetReaction("msg-1", ReactionLike)
	s.SetReaction("msg-2", ReactionDislike)

	require.Equal(t, ReactionLike, s.Reaction("msg-1"))
	require.Equal(t, ReactionDislike, s.Reaction("msg-2"))
	require.Equal(t, ReactionNone, s.Reaction("msg-3"))
}

func TestClearingAbsentReactionIsHarmless(t *testing.T) {
	s := newTestStore(t)
	s.SetReaction("never-reacted", ReactionNone)
	require.Equal(t, ReactionNone, s.Reaction("never-reacted"))
}

func TestReactionSurvivesReopen(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(dir)
	require.NoError(t, err)
	s.SetReaction("msg-1", ReactionLike)
	require.NoError(t, s.Close())

	reopened, err := Open(dir)
	require.NoError(t, err)
	defer reopened.Close()
	require.Equal(t, ReactionLike, reopened.Reaction("msg-1"))
}

func TestInvalidStoredReactionReadsAsNone(t *testing.T) {
	s := newTestStore(t)
	// A corrupt or future-format value under a reaction key reads as none.
	require.NoError(t, s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(reactionKeyPrefix+"msg-1"), []byte("confused"))
	}))
	require.Equal(t, ReactionNone, s.Reaction("msg-1"))
}

func TestThemeRoundTrip(t *testing.T) {
	s := newTestStore(t)
	require.Equal(t, "", s.Theme())

	s.SetTheme("light")
	require.Equal(t, "light", s.Theme())

	s.SetTheme("dark")
	require.Equal(t, "dark", s.Theme())
}
