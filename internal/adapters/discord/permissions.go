package discord

import (
	"context"

	"github.com/bwmarrin/discordgo"

	"github.com/jose-valero/slashkit/internal/app/dispatch"
	"github.com/jose-valero/slashkit/internal/domain"
)

// AdminGuard deja pasar al owner del guild, a quien tenga el bit de
// Administrator y a quien tenga alguno de adminRoleIDs.
func AdminGuard(s *discordgo.Session, adminRoleIDs []string) dispatch.Guard {
	return func(_ context.Context, inv *domain.Invocation) error {
		ic := inv.Raw
		if ic == nil || ic.Member == nil || ic.Member.User == nil {
			return dispatch.ErrDenied
		}
		var (
			ownerID string
			roles   []*discordgo.Role
		)
		if s != nil {
			if g, _ := s.State.Guild(ic.GuildID); g != nil {
				ownerID = g.OwnerID
			}
			// el bit sólo hace falta si la interacción no trae permisos
			if ic.Member.Permissions == 0 {
				roles, _ = s.GuildRoles(ic.GuildID)
			}
		}
		if isAdmin(ic.Member, ownerID, roles, adminRoleIDs) {
			return nil
		}
		return dispatch.ErrDenied
	}
}

func isAdmin(m *discordgo.Member, ownerID string, roles []*discordgo.Role, adminRoleIDs []string) bool {
	// Owner
	if ownerID != "" && m.User != nil && m.User.ID == ownerID {
		return true
	}

	// Bit de Administrator
	perms := m.Permissions
	if perms&discordgo.PermissionAdministrator == 0 {
	outer:
		for _, rid := range m.Roles {
			for _, ro := range roles {
				if ro.ID == rid {
					perms |= ro.Permissions
					if perms&discordgo.PermissionAdministrator != 0 {
						break outer
					}
				}
			}
		}
	}
	if perms&discordgo.PermissionAdministrator != 0 {
		return true
	}

	// Roles explícitos del bot
	if len(adminRoleIDs) > 0 {
		has := make(map[string]struct{}, len(m.Roles))
		for _, rid := range m.Roles {
			has[rid] = struct{}{}
		}
		for _, want := range adminRoleIDs {
			if _, ok := has[want]; ok {
				return true
			}
		}
	}
	return false
}
