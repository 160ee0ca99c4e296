package discordblue

import (
	"context"
	"fmt"
	"github.com/bwmarrin/discordgo"
	"slices"
)

// requireEmployee returns ErrPermission unless the interaction came from a
// guild member holding the configured employee role. Interactions from DMs
// always fail.
func (b *Bot) requireEmployee(ctx context.Context, h InteractionHandler) error {
	i := h.GetInteraction()
	if i.GuildID == "" || i.Member == nil {
		return ErrPermission
	}

	roleName := b.store.State().Discord.EmployeeRoleName
	if roleName == "" {
		h.Logger().WarnContext(ctx, "no employee role configured")
		return ErrPermission
	}

	roles, err := b.discord.session.GuildRoles(i.GuildID)
	if err != nil {
		return fmt.Errorf("error getting guild roles: %w", err)
	}
	if !memberHasRole(i.Member, roles, roleName) {
		return ErrPermission
	}
	return nil
}

// memberHasRole reports whether the member holds a role with the given
// name. Member roles are IDs, so they're matched against the guild's roles.
func memberHasRole(
	member *discordgo.Member,
	roles []*discordgo.Role,
	roleName string,
) bool {
	if member == nil {
		return false
	}
	for _, role := range roles {
		if role.Name == roleName && slices.Contains(member.Roles, role.ID) {
			return true
		}
	}
	return false
}
