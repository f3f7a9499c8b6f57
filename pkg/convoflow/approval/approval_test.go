package approval_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/convoflow/convoflow/pkg/convoflow/approval"
)

func TestInbox_OpenAndResolve(t *testing.T) {
	inbox := approval.NewInbox()

	req := inbox.Open("t1", "refund_authorized", "refund over limit")
	assert.Equal(t, approval.StatusPending, req.Status)
	assert.NotEmpty(t, req.ID)

	pending, ok := inbox.PendingFor("t1")
	require.True(t, ok)
	assert.Equal(t, "refund_authorized", pending.Flag)

	resolved, err := inbox.Resolve("t1", true)
	require.NoError(t, err)
	assert.Equal(t, approval.StatusGranted, resolved.Status)
	require.NotNil(t, resolved.ResolvedAt)

	_, ok = inbox.PendingFor("t1")
	assert.False(t, ok)

	history := inbox.History()
	require.Len(t, history, 1)
	assert.Equal(t, approval.StatusGranted, history[0].Status)
}

func TestInbox_Deny(t *testing.T) {
	inbox := approval.NewInbox()
	inbox.Open("t1", "refund_authorized", "")

	resolved, err := inbox.Resolve("t1", false)
	require.NoError(t, err)
	assert.Equal(t, approval.StatusDenied, resolved.Status)
}

func TestInbox_ResolveWithoutPending(t *testing.T) {
	inbox := approval.NewInbox()

	_, err := inbox.Resolve("missing", true)
	assert.ErrorIs(t, err, approval.ErrNoPending)
}

func TestInbox_ReopenReplacesPending(t *testing.T) {
	inbox := approval.NewInbox()

	first := inbox.Open("t1", "refund_authorized", "first ask")
	second := inbox.Open("t1", "refund_authorized", "asked again")

	pending, ok := inbox.PendingFor("t1")
	require.True(t, ok)
	assert.Equal(t, second.ID, pending.ID)
	assert.NotEqual(t, first.ID, pending.ID)

	all := inbox.Pending()
	require.Len(t, all, 1)
}

func TestInbox_PendingOrderedByAge(t *testing.T) {
	inbox := approval.NewInbox()

	inbox.Open("t1", "refund_authorized", "")
	inbox.Open("t2", "refund_authorized", "")

	pending := inbox.Pending()
	require.Len(t, pending, 2)
	assert.False(t, pending[1].RequestedAt.Before(pending[0].RequestedAt))
}
