package repository

import (
	"context"
	"querybot-go/internal/model"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryConversationRepositoryAppendsAndTrims(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryConversationRepository(3)

	require.NoError(t, repo.Append(ctx, "s1", model.NewTurn(model.TurnUser, "q1"), model.NewTurn(model.TurnAssistant, "a1")))
	require.NoError(t, repo.Append(ctx, "s1", model.NewTurn(model.TurnUser, "q2"), model.NewTurn(model.TurnAssistant, "a2")))
	require.NoError(t, repo.Append(ctx, "s2", model.NewTurn(model.TurnUser, "other")))

	turns, err := repo.History(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, turns, 3)
	assert.Equal(t, "a1", turns[0].Content)
	assert.Equal(t, "a2", turns[2].Content)

	// 返回的是副本
	turns[0].Content = "mutated"
	again, _ := repo.History(ctx, "s1")
	assert.Equal(t, "a1", again[0].Content)

	require.NoError(t, repo.Delete(ctx, "s1"))
	turns, err = repo.History(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, turns)

	other, _ := repo.History(ctx, "s2")
	assert.Len(t, other, 1)
}
