// Package storagetest holds the behavior every storage.Storage must share.
package storagetest

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwebster45206/novel-engine/pkg/cartridge/cartridgetest"
	"github.com/jwebster45206/novel-engine/pkg/chat"
	"github.com/jwebster45206/novel-engine/pkg/state"
	"github.com/jwebster45206/novel-engine/pkg/storage"
)

// Run exercises a store created fresh for each subtest.
func Run(t *testing.T, newStore func(t *testing.T) storage.Storage) {
	t.Helper()

	t.Run("ping", func(t *testing.T) {
		s := newStore(t)
		assert.NoError(t, s.Ping(context.Background()))
	})

	t.Run("project round trip", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		p := cartridgetest.Project()

		require.NoError(t, s.PutProject(ctx, &p))
		got, err := s.LoadProject(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, p, *got)

		p.Cartridge.Style.Prompt = "Changed."
		require.NoError(t, s.PutProject(ctx, &p))
		got, err = s.LoadProject(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, "Changed.", got.Cartridge.Style.Prompt)
	})

	t.Run("missing project", func(t *testing.T) {
		s := newStore(t)
		_, err := s.LoadProject(context.Background(), "proj-missing")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("playthrough lifecycle", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		pt := newPlaythrough(t, "user-1")

		require.NoError(t, s.CreatePlaythrough(ctx, pt))
		assert.EqualValues(t, 1, pt.Version)

		got, err := s.LoadPlaythrough(ctx, pt.ID)
		require.NoError(t, err)
		assert.Equal(t, pt.ID, got.ID)
		assert.Equal(t, pt.Lines, got.Lines)
		assert.Equal(t, pt.ProjectSnapshot, got.ProjectSnapshot)
		assert.EqualValues(t, 1, got.Version)

		got.Append(chat.DisplayLine{Type: chat.LinePlayer, Text: "Hello, owl."})
		require.NoError(t, s.UpdatePlaythrough(ctx, got))
		assert.EqualValues(t, 2, got.Version)

		again, err := s.LoadPlaythrough(ctx, pt.ID)
		require.NoError(t, err)
		assert.Len(t, again.Lines, len(pt.Lines)+1)
		assert.EqualValues(t, 2, again.Version)

		require.NoError(t, s.DeletePlaythrough(ctx, pt.ID))
		_, err = s.LoadPlaythrough(ctx, pt.ID)
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("stale update conflicts", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		pt := newPlaythrough(t, "user-1")
		require.NoError(t, s.CreatePlaythrough(ctx, pt))

		first, err := s.LoadPlaythrough(ctx, pt.ID)
		require.NoError(t, err)
		second, err := s.LoadPlaythrough(ctx, pt.ID)
		require.NoError(t, err)

		first.Liked = true
		require.NoError(t, s.UpdatePlaythrough(ctx, first))

		second.Visibility = state.VisibilityPublic
		err = s.UpdatePlaythrough(ctx, second)
		assert.ErrorIs(t, err, storage.ErrVersionConflict)
		assert.EqualValues(t, 1, second.Version, "failed update leaves the caller's version alone")

		got, err := s.LoadPlaythrough(ctx, pt.ID)
		require.NoError(t, err)
		assert.True(t, got.Liked)
		assert.Equal(t, state.VisibilityPrivate, got.Visibility)
	})

	t.Run("update missing playthrough", func(t *testing.T) {
		s := newStore(t)
		pt := newPlaythrough(t, "user-1")
		pt.Version = 1
		err := s.UpdatePlaythrough(context.Background(), pt)
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("list by project and user", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		a := newPlaythrough(t, "user-1")
		b := newPlaythrough(t, "user-1")
		c := newPlaythrough(t, "user-2")
		for _, pt := range []*state.Playthrough{a, b, c} {
			require.NoError(t, s.CreatePlaythrough(ctx, pt))
		}

		ids, err := s.ListPlaythroughs(ctx, cartridgetest.ProjectID, "user-1")
		require.NoError(t, err)
		assert.ElementsMatch(t, []uuid.UUID{a.ID, b.ID}, ids)

		require.NoError(t, s.DeletePlaythrough(ctx, a.ID))
		ids, err = s.ListPlaythroughs(ctx, cartridgetest.ProjectID, "user-1")
		require.NoError(t, err)
		assert.Equal(t, []uuid.UUID{b.ID}, ids)

		ids, err = s.ListPlaythroughs(ctx, "proj-other", "user-1")
		require.NoError(t, err)
		assert.Empty(t, ids)
	})
}

func newPlaythrough(t *testing.T, userID string) *state.Playthrough {
	t.Helper()
	p := cartridgetest.Project()
	pt, err := state.NewPlaythrough(&p, userID)
	require.NoError(t, err)
	return pt
}
