package transport

import (
	"errors"
	"fmt"
	"testing"
)

func TestMemberStatusSubscribed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status MemberStatus
		want   bool
	}{
		{StatusCreator, true},
		{StatusAdministrator, true},
		{StatusMember, true},
		{StatusRestricted, false},
		{StatusLeft, false},
		{StatusKicked, false},
		{MemberStatus("unknown"), false},
		{MemberStatus(""), false},
	}
	for _, tt := range tests {
		if got := tt.status.Subscribed(); got != tt.want {
			t.Errorf("%q.Subscribed() = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestCategory(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"forbidden", ErrForbidden, "forbidden"},
		{"wrapped forbidden", fmt.Errorf("send: %w", ErrForbidden), "forbidden"},
		{"not found", ErrNotFound, "not_found"},
		{"other", errors.New("timeout"), "transport"},
	}
	for _, tt := range tests {
		if got := Category(tt.err); got != tt.want {
			t.Errorf("%s: Category = %q, want %q", tt.name, got, tt.want)
		}
	}
}
