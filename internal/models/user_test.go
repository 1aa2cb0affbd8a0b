package models

import (
	"testing"
)

func TestIsValidRole(t *testing.T) {
	tests := []struct {
		name     string
		role     Role
		expected bool
	}{
		{"user role", RoleUser, true},
		{"premium role", RolePremium, true},
		{"admin role", RoleAdmin, true},
		{"invalid role", "operator", false},
		{"empty role", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := IsValidRole(tt.role)
			if result != tt.expected {
				t.Errorf("IsValidRole(%s) = %v, want %v", tt.role, result, tt.expected)
			}
		})
	}
}

func TestMaxVehicles(t *testing.T) {
	tests := []struct {
		role     Role
		expected int
	}{
		{RoleUser, 1},
		{RolePremium, 2},
		{RoleAdmin, -1},
		{"unknown", 0},
	}

	for _, tt := range tests {
		t.Run(string(tt.role), func(t *testing.T) {
			if got := MaxVehicles(tt.role); got != tt.expected {
				t.Errorf("MaxVehicles(%s) = %d, want %d", tt.role, got, tt.expected)
			}
		})
	}
}
