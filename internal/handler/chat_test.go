package handler

import (
	"testing"

	"github.com/chatdesk/internal/model"
)

func TestCanManageLabels(t *testing.T) {
	cases := []struct {
		name    string
		isGroup bool
		role    string
		want    bool
	}{
		{"group admin", true, model.RoleAdmin, true},
		{"group member rejected", true, model.RoleMember, false},
		{"direct chat member", false, model.RoleMember, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := canManageLabels(tc.isGroup, tc.role); got != tc.want {
				t.Errorf("canManageLabels(%v, %q) = %v, want %v", tc.isGroup, tc.role, got, tc.want)
			}
		})
	}
}
