package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to string
		want     bool
	}{
		{RequestStatusPending, RequestStatusAccepted, true},
		{RequestStatusPending, RequestStatusDenied, true},
		{RequestStatusPending, RequestStatusActive, false},
		{RequestStatusAccepted, RequestStatusActive, true},
		{RequestStatusAccepted, RequestStatusDenied, false},
		{RequestStatusActive, RequestStatusCompleted, true},
		{RequestStatusDenied, RequestStatusAccepted, false},
		{RequestStatusCompleted, RequestStatusActive, false},
		{"UNKNOWN", RequestStatusAccepted, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, CanTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestIsTerminal(t *testing.T) {
	assert.True(t, IsTerminal(RequestStatusDenied))
	assert.True(t, IsTerminal(RequestStatusCompleted))
	assert.False(t, IsTerminal(RequestStatusPending))
	assert.False(t, IsTerminal(RequestStatusAccepted))
	assert.False(t, IsTerminal(RequestStatusActive))
}

func TestPaymentMethodsAndUserTypes(t *testing.T) {
	assert.True(t, IsPaymentMethod(PaymentMethodUPI))
	assert.True(t, IsPaymentMethod(PaymentMethodNetBanking))
	assert.False(t, IsPaymentMethod("CASH"))
	assert.False(t, IsPaymentMethod("upi"))

	assert.True(t, IsUserType(UserTypeProvider))
	assert.False(t, IsUserType("GUEST"))
}
