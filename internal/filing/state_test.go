package filing

import (
	"errors"
	"testing"

	"github.com/dmitrijs2005/taxdesk/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allStatuses = []Status{StatusSubmitted, StatusAssigned, StatusProcessing, StatusCompleted, StatusCancelled}

func TestCheckTransition_Legal(t *testing.T) {
	require.NoError(t, CheckTransition(RoleOwner, StatusSubmitted, StatusCancelled))
	require.NoError(t, CheckTransition(RoleProfessional, StatusAssigned, StatusProcessing))
	require.NoError(t, CheckTransition(RoleProfessional, StatusProcessing, StatusCompleted))
	require.NoError(t, CheckTransition(RoleOperator, StatusSubmitted, StatusAssigned))
}

func TestCheckTransition_OwnerCancelProcessing(t *testing.T) {
	err := CheckTransition(RoleOwner, StatusProcessing, StatusCancelled)

	var it *common.IllegalTransitionError
	require.True(t, errors.As(err, &it))
	assert.Equal(t, "processing", it.From)
	assert.Equal(t, "cancelled", it.To)
}

func TestCheckTransition_EverythingElseIllegal(t *testing.T) {
	legal := 0
	for _, role := range []Role{RoleOwner, RoleProfessional, RoleOperator} {
		for _, from := range allStatuses {
			for _, to := range allStatuses {
				if CheckTransition(role, from, to) == nil {
					legal++
				}
			}
		}
	}
	assert.Equal(t, 4, legal)

	// terminal states have no exits
	for _, role := range []Role{RoleOwner, RoleProfessional, RoleOperator} {
		for _, to := range allStatuses {
			assert.Error(t, CheckTransition(role, StatusCompleted, to))
			assert.Error(t, CheckTransition(role, StatusCancelled, to))
		}
	}
}

func TestGatingMatrix(t *testing.T) {
	tests := []struct {
		status                Status
		ownerAdd, ownerDelete bool
		proAdd, proDelete     bool
	}{
		{StatusSubmitted, true, true, false, false},
		{StatusAssigned, true, false, true, false},
		{StatusProcessing, true, false, true, false},
		{StatusCompleted, false, false, false, false},
		{StatusCancelled, false, false, false, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.ownerAdd, CanAdd(RoleOwner, tt.status))
			assert.Equal(t, tt.ownerDelete, CanDelete(RoleOwner, tt.status))
			assert.Equal(t, tt.proAdd, CanAdd(RoleProfessional, tt.status))
			assert.Equal(t, tt.proDelete, CanDelete(RoleProfessional, tt.status))
			assert.False(t, CanAdd(RoleOperator, tt.status))
			assert.False(t, CanDelete(RoleOperator, tt.status))
		})
	}
}

func TestActor_RoleFor(t *testing.T) {
	pro := "pro-9"
	r := &Request{OwnerID: "user-1", AssignedProfessionalID: &pro}

	role, ok := Actor{UserID: "user-1"}.RoleFor(r)
	require.True(t, ok)
	assert.Equal(t, RoleOwner, role)

	role, ok = Actor{UserID: "user-2", ProfessionalID: "pro-9", VerifiedProfessional: true}.RoleFor(r)
	require.True(t, ok)
	assert.Equal(t, RoleProfessional, role)

	_, ok = Actor{UserID: "user-2", ProfessionalID: "pro-9"}.RoleFor(r)
	assert.False(t, ok, "unverified professional has no access")

	_, ok = Actor{UserID: "user-3", ProfessionalID: "pro-1", VerifiedProfessional: true}.RoleFor(r)
	assert.False(t, ok)

	role, ok = Actor{UserID: "ops", Operator: true}.RoleFor(r)
	require.True(t, ok)
	assert.Equal(t, RoleOperator, role)
}

func TestActor_UploaderID(t *testing.T) {
	a := Actor{UserID: "user-1", ProfessionalID: "pro-1"}
	assert.Equal(t, "user-1", a.UploaderID(RoleOwner))
	assert.Equal(t, "pro-1", a.UploaderID(RoleProfessional))
}
