package shared

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDomainError_KindMatching(t *testing.T) {
	wrapped := fmt.Errorf("claim: %w", ErrQuestAlreadyClaimed)

	assert.True(t, IsAlreadyDone(wrapped))
	assert.False(t, IsNotFound(wrapped))
	assert.False(t, IsForbidden(wrapped))

	assert.True(t, IsForbidden(ErrRecapForbidden))
	assert.True(t, IsValidation(ErrNegativeXP))
	assert.True(t, IsNotFound(ErrFlexCardNotFound))
}

func TestWrapError_KeepsCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := WrapError("notification", "Send", ErrServiceUnavailable, "push failed", cause)

	assert.ErrorIs(t, err, cause)
	assert.True(t, IsExternalService(err))
	assert.True(t, IsRetryable(err))
	assert.Contains(t, err.Error(), "notification.Send")
}

func TestActor_CanActOn(t *testing.T) {
	user := Actor{UserID: "u1", Roles: []Role{RoleUser}}
	admin := Actor{UserID: "a1", Roles: ParseRoles("User, ADMIN")}

	assert.True(t, user.CanActOn("u1"))
	assert.False(t, user.CanActOn("u2"))
	assert.True(t, admin.CanActOn("u2"))
	assert.True(t, SystemActor().IsPrivileged())
	assert.False(t, Actor{}.CanActOn(""))
}

func TestNewUserID(t *testing.T) {
	id, err := NewUserID("  abc ")
	require.NoError(t, err)
	assert.Equal(t, UserID("abc"), id)

	_, err = NewUserID("   ")
	assert.True(t, IsValidation(err))
}

func TestTimeRange_ContainsInclusive(t *testing.T) {
	from := time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 1, 14, 23, 59, 59, 0, time.UTC)
	tr, err := NewTimeRange(from, to)
	require.NoError(t, err)

	assert.True(t, tr.Contains(from))
	assert.True(t, tr.Contains(to))
	assert.False(t, tr.Contains(to.Add(time.Second)))

	_, err = NewTimeRange(to, from)
	assert.Error(t, err)
}

func TestPagination(t *testing.T) {
	p := NewPagination(3, 500)
	assert.Equal(t, MaxPageSize, p.Limit())
	assert.Equal(t, 200, p.Offset())
}
