package apperrors

import (
	"fmt"
	"net/http"
	"testing"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthorizationNamesRoles(t *testing.T) {
	err := Authorization("can_register", []string{"registration_clerk", "admin"})

	assert.Equal(t, KindAuthorization, err.Kind)
	assert.Equal(t, []string{"admin", "registration_clerk"}, err.RequiredRoles)
	assert.Equal(t, "access denied: can_register requires role: admin or registration_clerk", err.Error())
	assert.Equal(t, http.StatusForbidden, HTTPStatus(err))
}

func TestValidationCollectsFields(t *testing.T) {
	verr := validation.Errors{
		"age":    fmt.Errorf("must be no greater than 150"),
		"gender": nil,
	}
	input := map[string]int{"age": 200}

	err := Validation(verr, input)

	assert.Equal(t, map[string]string{"age": "must be no greater than 150"}, err.Fields)
	assert.Equal(t, input, err.Input)
	assert.True(t, IsValidation(err))
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(err))
}

func TestKindSurvivesWrapping(t *testing.T) {
	wrapped := fmt.Errorf("dispense: %w", StateConflict("prescription", "details_needed", "Prescription is not ready to dispense"))

	assert.True(t, IsStateConflict(wrapped))
	e, ok := As(wrapped)
	require.True(t, ok)
	assert.Equal(t, "details_needed", e.CurrentState)
	assert.Equal(t, http.StatusConflict, HTTPStatus(wrapped))

	assert.Equal(t, KindInternal, KindOf(fmt.Errorf("boom")))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(fmt.Errorf("boom")))
}

func TestUnauthorizedMapsTo401(t *testing.T) {
	err := Unauthorized("invalid username or password")

	assert.True(t, IsUnauthorized(err))
	assert.False(t, IsAuthorization(err))
	assert.Equal(t, http.StatusUnauthorized, HTTPStatus(err))
}
