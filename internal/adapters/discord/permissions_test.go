package discord

import (
	"context"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"

	"github.com/jose-valero/slashkit/internal/app/dispatch"
	"github.com/jose-valero/slashkit/internal/domain"
)

func TestIsAdmin(t *testing.T) {
	roles := []*discordgo.Role{
		{ID: "r-admin", Permissions: discordgo.PermissionAdministrator},
		{ID: "r-mod", Permissions: discordgo.PermissionManageMessages},
	}
	member := func(id string, roleIDs ...string) *discordgo.Member {
		return &discordgo.Member{User: &discordgo.User{ID: id}, Roles: roleIDs}
	}

	tests := []struct {
		name  string
		m     *discordgo.Member
		extra []string
		want  bool
	}{
		{name: "owner", m: member("owner"), want: true},
		{name: "administrator role", m: member("1", "r-admin"), want: true},
		{name: "plain member", m: member("1", "r-mod"), want: false},
		{name: "configured role", m: member("1", "r-mod"), extra: []string{"r-mod"}, want: true},
		{name: "interaction permissions", m: &discordgo.Member{User: &discordgo.User{ID: "1"}, Permissions: discordgo.PermissionAdministrator}, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isAdmin(tt.m, "owner", roles, tt.extra))
		})
	}
}

func TestAdminGuardWithoutSession(t *testing.T) {
	g := AdminGuard(nil, []string{"r-admin"})

	inv := &domain.Invocation{}
	assert.ErrorIs(t, g(context.Background(), inv), dispatch.ErrDenied)

	inv.Raw = &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		Member: &discordgo.Member{User: &discordgo.User{ID: "1"}, Roles: []string{"r-admin"}},
	}}
	assert.NoError(t, g(context.Background(), inv))
}
