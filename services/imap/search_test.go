package imap

import (
	"context"
	"testing"

	goimap "github.com/emersion/go-imap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindUnreadFromSendersEmptyList(t *testing.T) {
	// No session at all: an empty allow-list must short-circuit
	// before any server interaction.
	s := &IMAPService{}

	uids, err := s.FindUnreadFromSenders(context.Background(), nil)

	require.NoError(t, err)
	assert.Empty(t, uids)

	uids, err = s.FindUnreadFromSenders(context.Background(), []string{})

	require.NoError(t, err)
	assert.Empty(t, uids)
}

func TestBuildUnreadCriteriaSingleSender(t *testing.T) {
	criteria := buildUnreadCriteria([]string{"alerts@example.com"})

	assert.Equal(t, []string{goimap.SeenFlag}, criteria.WithoutFlags)
	assert.Equal(t, "alerts@example.com", criteria.Header.Get("From"))
	assert.Empty(t, criteria.Or)
}

func TestBuildUnreadCriteriaTwoSenders(t *testing.T) {
	criteria := buildUnreadCriteria([]string{"a@example.com", "b@example.com"})

	assert.Equal(t, []string{goimap.SeenFlag}, criteria.WithoutFlags)
	assert.Empty(t, criteria.Header.Get("From"))

	require.Len(t, criteria.Or, 1)
	left, right := criteria.Or[0][0], criteria.Or[0][1]
	assert.Equal(t, "a@example.com", left.Header.Get("From"))
	assert.Equal(t, "b@example.com", right.Header.Get("From"))
}

func TestBuildUnreadCriteriaManySendersPreservesOrder(t *testing.T) {
	senders := []string{"a@example.com", "b@example.com", "c@example.com"}
	criteria := buildUnreadCriteria(senders)

	assert.Equal(t, []string{goimap.SeenFlag}, criteria.WithoutFlags)

	// OR(a, OR(b, c)): walking the nested pairs left to right yields
	// the configured order.
	var collected []string
	node := criteria
	for len(node.Or) == 1 {
		left, right := node.Or[0][0], node.Or[0][1]
		collected = append(collected, left.Header.Get("From"))
		node = right
	}
	collected = append(collected, node.Header.Get("From"))

	assert.Equal(t, senders, collected)
}
