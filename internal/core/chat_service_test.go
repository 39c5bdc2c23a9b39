package core

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SagarKapoorin/ClickPe/internal/store"
)

// scriptedCompleter records calls and returns whatever it was told to.
type scriptedCompleter struct {
	reply string
	err   error
	calls int
}

func (c *scriptedCompleter) Complete(ctx context.Context, messages []PromptMessage) (string, error) {
	c.calls++
	return c.reply, c.err
}

func newAskTestStore(t *testing.T) store.Store {
	t.Helper()
	dbStore, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { dbStore.Close() })

	product := promptTestProduct()
	require.NoError(t, dbStore.UpsertProduct(context.Background(), product))
	return dbStore
}

func TestAskUnknownProduct(t *testing.T) {
	dbStore := newAskTestStore(t)
	completer := &scriptedCompleter{reply: "should not be used"}
	service := NewAskService(dbStore, completer)

	_, err := service.Ask(context.Background(), nil, "ffffffff-ffff-4fff-8fff-ffffffffffff", "hi", nil)

	assert.ErrorIs(t, err, ErrProductNotFound)
	assert.Zero(t, completer.calls, "completion must not be called for a missing product")
}

func TestAskReturnsCompletionReply(t *testing.T) {
	dbStore := newAskTestStore(t)
	completer := &scriptedCompleter{reply: "Overview: looks like a fit."}
	service := NewAskService(dbStore, completer)

	user, err := dbStore.CreateUser(context.Background(), "a@b.com", "hash", nil)
	require.NoError(t, err)

	answer, err := service.Ask(context.Background(), &user.ID, promptTestProduct().ID, "Is this for me?", nil)

	require.NoError(t, err)
	assert.Equal(t, "Overview: looks like a fit.", answer)
	assert.Equal(t, 1, completer.calls)

	// Both sides of the exchange were logged under the user.
	conversations, err := dbStore.ConversationsByUser(context.Background(), user.ID)
	require.NoError(t, err)
	require.Len(t, conversations, 1)
	assert.Equal(t, promptTestProduct().ID, conversations[0].ProductID)
	assert.Equal(t, RoleAssistant, conversations[0].LastRole)
	assert.Equal(t, "Overview: looks like a fit.", conversations[0].LastMessage)
}

func TestAskFallsBackOnCompleterError(t *testing.T) {
	dbStore := newAskTestStore(t)
	completer := &scriptedCompleter{err: errors.New("upstream down")}
	service := NewAskService(dbStore, completer)

	answer, err := service.Ask(context.Background(), nil, promptTestProduct().ID, "hi", nil)

	require.NoError(t, err, "a completion failure is never surfaced to the caller")
	assert.Equal(t, BuildFallbackAnswer(promptTestProduct()), answer)
}

func TestAskFallsBackOnEmptyReply(t *testing.T) {
	dbStore := newAskTestStore(t)
	completer := &scriptedCompleter{reply: "   \n"}
	service := NewAskService(dbStore, completer)

	answer, err := service.Ask(context.Background(), nil, promptTestProduct().ID, "hi", nil)

	require.NoError(t, err)
	assert.Equal(t, BuildFallbackAnswer(promptTestProduct()), answer)
}

func TestAskWithoutCompleter(t *testing.T) {
	dbStore := newAskTestStore(t)
	service := NewAskService(dbStore, nil)

	answer, err := service.Ask(context.Background(), nil, promptTestProduct().ID, "hi", nil)

	require.NoError(t, err)
	assert.Equal(t, BuildFallbackAnswer(promptTestProduct()), answer)
}
