package xivemotes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
)

const (
	// DiscordSlashCommandEmote is the '/emote' slash command
	DiscordSlashCommandEmote = "emote"

	// DiscordSlashCommandSettings is the '/settings' slash command
	DiscordSlashCommandSettings = "settings"

	// DiscordSlashCommandServerSettings is the '/server-settings' slash command
	DiscordSlashCommandServerSettings = "server-settings"

	// DiscordSlashCommandStats is the '/stats' slash command
	DiscordSlashCommandStats = "stats"

	emoteCommandEmoteOption    = "emote"
	emoteCommandTargetOption   = "target"
	settingsLanguageOption     = "language"
	settingsGenderOption       = "gender"
	serverSettingsPrefixOption = "prefix"
	statsScopeOption           = "scope"
	statsReceivedOption        = "received"

	statsScopeUser   = "user"
	statsScopeServer = "server"

	// prefixCommandEmotes lists every known emote command
	prefixCommandEmotes = "emotes"

	// prefixCommandHelp prints usage for the prefix commands
	prefixCommandHelp = "help"
)

func languageChoices() []*discordgo.ApplicationCommandOptionChoice {
	return []*discordgo.ApplicationCommandOptionChoice{
		{Name: "English", Value: LanguageEN.String()},
		{Name: "日本語", Value: LanguageJA.String()},
	}
}

func genderChoices() []*discordgo.ApplicationCommandOptionChoice {
	return []*discordgo.ApplicationCommandOptionChoice{
		{Name: "Male", Value: GenderMale.String()},
		{Name: "Female", Value: GenderFemale.String()},
	}
}

// appCommandEmote creates the ApplicationCommand for the "emote"
// command, used to send an emote message via a slash command.
func (*Discord) appCommandEmote() *discordgo.ApplicationCommand {
	minLength := 1
	dmPerm := true
	return &discordgo.ApplicationCommand{
		Name:         DiscordSlashCommandEmote,
		Description:  "Send an emote message",
		DMPermission: &dmPerm,
		Type:         discordgo.ChatApplicationCommand,
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        emoteCommandEmoteOption,
				Description: "The emote command (e.g. hug)",
				Required:    true,
				MinLength:   &minLength,
			},
			{
				Type:        discordgo.ApplicationCommandOptionUser,
				Name:        emoteCommandTargetOption,
				Description: "The user to target with the emote",
			},
		},
	}
}

// appCommandSettings creates the ApplicationCommand for the "settings"
// command, which displays or updates the calling user's settings.
func (*Discord) appCommandSettings() *discordgo.ApplicationCommand {
	dmPerm := true
	return &discordgo.ApplicationCommand{
		Name:         DiscordSlashCommandSettings,
		Description:  "Show or change your emote language and gender",
		DMPermission: &dmPerm,
		Type:         discordgo.ChatApplicationCommand,
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        settingsLanguageOption,
				Description: "Emote message language",
				Choices:     languageChoices(),
			},
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        settingsGenderOption,
				Description: "Character gender used in emote messages",
				Choices:     genderChoices(),
			},
		},
	}
}

// appCommandServerSettings creates the ApplicationCommand for the
// "server-settings" command, which displays or updates guild-wide
// settings. Guild-only.
func (*Discord) appCommandServerSettings() *discordgo.ApplicationCommand {
	dmPerm := false
	adminPerm := int64(discordgo.PermissionManageServer)
	maxPrefixLength := 5
	return &discordgo.ApplicationCommand{
		Name:                     DiscordSlashCommandServerSettings,
		Description:              "Show or change this server's emote settings",
		DMPermission:             &dmPerm,
		DefaultMemberPermissions: &adminPerm,
		Type:                     discordgo.ChatApplicationCommand,
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        settingsLanguageOption,
				Description: "Default emote message language for this server",
				Choices:     languageChoices(),
			},
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        settingsGenderOption,
				Description: "Default character gender for this server",
				Choices:     genderChoices(),
			},
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        serverSettingsPrefixOption,
				Description: "Command prefix for this server (e.g. !)",
				MaxLength:   maxPrefixLength,
			},
		},
	}
}

// appCommandStats creates the ApplicationCommand for the "stats"
// command, which reports emote usage counts.
func (*Discord) appCommandStats() *discordgo.ApplicationCommand {
	dmPerm := true
	return &discordgo.ApplicationCommand{
		Name:         DiscordSlashCommandStats,
		Description:  "Show emote usage statistics",
		DMPermission: &dmPerm,
		Type:         discordgo.ChatApplicationCommand,
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        statsScopeOption,
				Description: "Count your own usage, or the whole server's",
				Choices: []*discordgo.ApplicationCommandOptionChoice{
					{Name: "Yours", Value: statsScopeUser},
					{Name: "Server", Value: statsScopeServer},
				},
			},
			{
				Type:        discordgo.ApplicationCommandOptionBoolean,
				Name:        statsReceivedOption,
				Description: "Count emotes received instead of sent",
			},
		},
	}
}

// handlerInteractionCreate dispatches incoming slash command
// interactions to the matching handler.
func (d *Discord) handlerInteractionCreate() func(
	s *discordgo.Session,
	i *discordgo.InteractionCreate,
) {
	return func(_ *discordgo.Session, i *discordgo.InteractionCreate) {
		if i.Type != discordgo.InteractionApplicationCommand {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), dbOperationTimeout)
		defer cancel()

		logger := d.logger.With(
			slog.Group("interaction", interactionLogAttrs(*i)...),
		)
		ctx = WithLogger(ctx, logger)

		var content string
		var ephemeral bool
		var err error

		switch i.ApplicationCommandData().Name {
		case DiscordSlashCommandEmote:
			content, err = d.bot.handleEmoteInteraction(ctx, i)
		case DiscordSlashCommandSettings:
			content, err = d.bot.handleSettingsInteraction(ctx, i)
			ephemeral = true
		case DiscordSlashCommandServerSettings:
			content, err = d.bot.handleServerSettingsInteraction(ctx, i)
			ephemeral = true
		case DiscordSlashCommandStats:
			content, err = d.bot.handleStatsInteraction(ctx, i)
		default:
			logger.Warn(
				"unknown interaction",
				"command", i.ApplicationCommandData().Name,
			)
			return
		}

		if err != nil {
			logger.Error("error handling interaction", tint.Err(err))
			content = userErrorMessage(err)
			ephemeral = true
		}

		resp := &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseChannelMessageWithSource,
			Data: &discordgo.InteractionResponseData{Content: content},
		}
		if ephemeral {
			resp.Data.Flags = discordgo.MessageFlagsEphemeral
		}
		if respErr := d.session.InteractionRespond(i.Interaction, resp); respErr != nil {
			logger.Error("error responding to interaction", tint.Err(respErr))
		}
	}
}

// handlerMessageCreate handles prefix commands in regular messages:
// '!<emote> [@user ...]', '!emotes' and '!help'. The prefix is the
// guild's configured prefix, or '!' in direct messages and
// unconfigured guilds.
func (d *Discord) handlerMessageCreate() func(
	s *discordgo.Session,
	m *discordgo.MessageCreate,
) {
	return func(s *discordgo.Session, m *discordgo.MessageCreate) {
		if m.Author == nil || m.Author.Bot {
			return
		}
		if s != nil && s.State != nil && s.State.User != nil &&
			m.Author.ID == s.State.User.ID {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), dbOperationTimeout)
		defer cancel()

		logger := d.logger.With(
			"message_id", m.ID,
			"channel_id", m.ChannelID,
			"guild_id", m.GuildID,
			"author_id", m.Author.ID,
		)
		ctx = WithLogger(ctx, logger)

		content, handled, err := d.bot.handlePrefixMessage(ctx, m)
		if err != nil {
			logger.Error("error handling message", tint.Err(err))
			content = userErrorMessage(err)
		}
		if !handled && err == nil {
			return
		}
		if content == "" {
			return
		}
		if sendErr := d.channelMessageReply(
			m.ChannelID, content, m.Reference(),
		); sendErr != nil {
			logger.Error("error sending reply", tint.Err(sendErr))
		}
	}
}

// userErrorMessage maps an internal error to the text shown to the
// user. Known conditions get specific messages, everything else gets a
// generic apology.
func userErrorMessage(err error) string {
	switch {
	case errors.Is(err, ErrEmoteNotFound):
		return "I don't know that emote, sorry!"
	case errors.Is(err, ErrTargetRequired):
		return "that emote needs a target. Try mentioning someone!"
	case errors.Is(err, errRateLimited):
		return "you're sending emotes too quickly. Give me a moment!"
	case errors.Is(err, errGuildOnly):
		return "that only works in a server, not in a DM!"
	default:
		return DefaultDiscordErrorMessage
	}
}

// handleEmoteInteraction runs the '/emote' slash command: renders the
// emote message for the caller and records the invocation.
func (b *XIVEmotes) handleEmoteInteraction(
	ctx context.Context,
	i *discordgo.InteractionCreate,
) (string, error) {
	discordUser := getDiscordUser(i)
	if discordUser == nil {
		return "", errors.New("interaction has no user")
	}

	options := discordInteractionOptions(i)
	emoteOpt, ok := options[emoteCommandEmoteOption]
	if !ok {
		return "", errors.New("missing emote option")
	}

	var targets []*discordgo.User
	if targetOpt, ok := options[emoteCommandTargetOption]; ok {
		if target := targetOpt.UserValue(nil); target != nil {
			targets = append(targets, target)
		}
	}

	return b.runEmote(
		ctx,
		emoteOpt.StringValue(),
		discordUser,
		i.GuildID,
		targets,
	)
}

// handleSettingsInteraction runs the '/settings' slash command. With no
// options it reports the caller's effective settings; with options it
// updates the caller's saved preference.
func (b *XIVEmotes) handleSettingsInteraction(
	ctx context.Context,
	i *discordgo.InteractionCreate,
) (string, error) {
	discordUser := getDiscordUser(i)
	if discordUser == nil {
		return "", errors.New("interaction has no user")
	}

	user, guildPK, err := b.resolveMessageContext(ctx, discordUser.ID, i.GuildID)
	if err != nil {
		return "", err
	}

	options := discordInteractionOptions(i)
	language, gender, err := parsePreferenceOptions(options)
	if err != nil {
		return "", err
	}

	if language == nil && gender == nil {
		settings, err := b.store.EffectiveSettings(ctx, user.ID, guildPK)
		if err != nil {
			return "", err
		}
		return settingsSummary(settings), nil
	}

	if err := b.store.SetUserPreference(ctx, user.ID, language, gender); err != nil {
		return "", err
	}
	settings, err := b.store.EffectiveSettings(ctx, user.ID, guildPK)
	if err != nil {
		return "", err
	}
	return "Settings updated! " + settingsSummary(settings), nil
}

// handleServerSettingsInteraction runs the '/server-settings' slash
// command. Guild-only: the prefix and guild defaults have no meaning in
// a DM.
func (b *XIVEmotes) handleServerSettingsInteraction(
	ctx context.Context,
	i *discordgo.InteractionCreate,
) (string, error) {
	if i.GuildID == "" {
		return "", errGuildOnly
	}
	guild, err := b.store.ResolveGuild(ctx, PadDiscordID(i.GuildID))
	if err != nil {
		return "", err
	}

	options := discordInteractionOptions(i)
	language, gender, err := parsePreferenceOptions(options)
	if err != nil {
		return "", err
	}
	var prefix *string
	if prefixOpt, ok := options[serverSettingsPrefixOption]; ok {
		v := prefixOpt.StringValue()
		prefix = &v
	}

	if language == nil && gender == nil && prefix == nil {
		return guildSettingsSummary(guild), nil
	}

	if err := b.store.SetGuildPreference(
		ctx, guild.ID, language, gender, prefix,
	); err != nil {
		return "", err
	}
	updated, err := b.store.ResolveGuild(ctx, guild.DiscordID)
	if err != nil {
		return "", err
	}
	return "Server settings updated! " + guildSettingsSummary(updated), nil
}

// handleStatsInteraction runs the '/stats' slash command.
func (b *XIVEmotes) handleStatsInteraction(
	ctx context.Context,
	i *discordgo.InteractionCreate,
) (string, error) {
	discordUser := getDiscordUser(i)
	if discordUser == nil {
		return "", errors.New("interaction has no user")
	}

	user, guildPK, err := b.resolveMessageContext(ctx, discordUser.ID, i.GuildID)
	if err != nil {
		return "", err
	}

	options := discordInteractionOptions(i)
	scope := statsScopeUser
	if scopeOpt, ok := options[statsScopeOption]; ok {
		scope = scopeOpt.StringValue()
	}
	var received bool
	if receivedOpt, ok := options[statsReceivedOption]; ok {
		received = receivedOpt.BoolValue()
	}

	query := UsageQuery{Received: received}
	switch scope {
	case statsScopeServer:
		if guildPK == nil {
			return "", errGuildOnly
		}
		query.GuildID = guildPK
	default:
		query.UserID = &user.ID
	}

	count, err := b.store.UsageCount(ctx, query)
	if err != nil {
		return "", err
	}
	settings, err := b.store.EffectiveSettings(ctx, user.ID, guildPK)
	if err != nil {
		return "", err
	}
	return statsMessage(query, count, settings.Language, discordUser.Mention()), nil
}

// handlePrefixMessage parses a regular chat message for prefix
// commands. Returns handled=false when the message doesn't start with
// the effective prefix, or names no known command.
func (b *XIVEmotes) handlePrefixMessage(
	ctx context.Context,
	m *discordgo.MessageCreate,
) (content string, handled bool, err error) {
	prefix := DefaultPrefix
	var guild *Guild
	if m.GuildID != "" {
		guild, err = b.store.ResolveGuild(ctx, PadDiscordID(m.GuildID))
		if err != nil {
			return "", false, err
		}
		if guild.Prefix != "" {
			prefix = guild.Prefix
		}
	}

	if !strings.HasPrefix(m.Content, prefix) {
		return "", false, nil
	}
	fields := strings.Fields(strings.TrimPrefix(m.Content, prefix))
	if len(fields) == 0 {
		return "", false, nil
	}

	switch fields[0] {
	case prefixCommandHelp:
		return b.helpMessage(prefix), true, nil
	case prefixCommandEmotes:
		pages := splitByMaxMessageLen("List of emotes", b.catalog.Commands())
		if len(pages) == 0 {
			return "no emotes are loaded yet, try again soon!", true, nil
		}
		// Long lists don't fit a single reply. The first page goes
		// back as the reply, the rest are sent as followup messages.
		for _, page := range pages[1:] {
			if sendErr := b.discord.channelMessageSend(m.ChannelID, page); sendErr != nil {
				return "", true, sendErr
			}
		}
		return pages[0], true, nil
	default:
	}

	if _, ok := b.catalog.Lookup(fields[0]); !ok {
		// Not one of ours; some other bot may share the prefix.
		return "", false, nil
	}

	content, err = b.runEmote(ctx, fields[0], m.Author, m.GuildID, m.Mentions)
	return content, true, err
}

func (b *XIVEmotes) helpMessage(prefix string) string {
	return fmt.Sprintf(
		"Use `%[1]s<emote>` to send an emote message, mentioning users to "+
			"target them (e.g. `%[1]shug @someone`). `%[1]semotes` lists "+
			"every emote. Slash commands: `/emote`, `/settings`, "+
			"`/server-settings`, `/stats`.",
		prefix,
	)
}

// runEmote is the shared path for emote invocations from slash and
// prefix commands: resolve identities and settings, render the message,
// and record the invocation with its tagged users.
func (b *XIVEmotes) runEmote(
	ctx context.Context,
	emoteName string,
	author *discordgo.User,
	discordGuildID string,
	targets []*discordgo.User,
) (string, error) {
	if !b.allowUser(author.ID) {
		return "", fmt.Errorf("user %s: %w", author.ID, errRateLimited)
	}

	emote, ok := b.catalog.Lookup(emoteName)
	if !ok {
		return "", fmt.Errorf("emote %q: %w", emoteName, ErrEmoteNotFound)
	}

	user, guildPK, err := b.resolveMessageContext(ctx, author.ID, discordGuildID)
	if err != nil {
		return "", err
	}
	settings, err := b.store.EffectiveSettings(ctx, user.ID, guildPK)
	if err != nil {
		return "", err
	}

	taggedIDs := make([]uint, 0, len(targets))
	mentions := make([]string, 0, len(targets))
	for _, target := range targets {
		tagged, err := b.store.ResolveUser(ctx, PadDiscordID(target.ID))
		if err != nil {
			return "", err
		}
		taggedIDs = append(taggedIDs, tagged.ID)
		mentions = append(mentions, target.Mention())
	}

	var targetMention string
	if len(mentions) > 0 {
		targetMention = strings.Join(mentions, ", ")
	}

	content, err := b.renderer.Render(emote, settings, author.Mention(), targetMention)
	if err != nil {
		return "", err
	}

	if _, err := b.store.RecordInvocation(
		ctx, user.ID, guildPK, emote.ID, time.Now(), taggedIDs,
	); err != nil {
		return "", err
	}
	return content, nil
}

// resolveMessageContext resolves (creating on first sight) the author's
// user row and, for guild messages, the guild row. Returns the guild's
// surrogate key or nil for direct messages.
func (b *XIVEmotes) resolveMessageContext(
	ctx context.Context,
	discordUserID string,
	discordGuildID string,
) (*User, *uint, error) {
	user, err := b.store.ResolveUser(ctx, PadDiscordID(discordUserID))
	if err != nil {
		return nil, nil, err
	}
	var guildPK *uint
	if discordGuildID != "" {
		guild, err := b.store.ResolveGuild(ctx, PadDiscordID(discordGuildID))
		if err != nil {
			return nil, nil, err
		}
		guildPK = &guild.ID
	}
	return user, guildPK, nil
}

func parsePreferenceOptions(
	options map[string]*discordgo.ApplicationCommandInteractionDataOption,
) (*Language, *Gender, error) {
	var language *Language
	var gender *Gender
	if langOpt, ok := options[settingsLanguageOption]; ok {
		l, err := ParseLanguage(langOpt.StringValue())
		if err != nil {
			return nil, nil, err
		}
		language = &l
	}
	if genderOpt, ok := options[settingsGenderOption]; ok {
		g, err := ParseGender(genderOpt.StringValue())
		if err != nil {
			return nil, nil, err
		}
		gender = &g
	}
	return language, gender, nil
}

func settingsSummary(s Settings) string {
	return fmt.Sprintf(
		"Language: %s, Gender: %s (from %s settings)",
		s.Language.Localized(s.Language),
		s.Gender.Localized(s.Language),
		s.Source,
	)
}

func guildSettingsSummary(g *Guild) string {
	prefix := g.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if _, ok := g.Preference(); !ok {
		return fmt.Sprintf(
			"This server has no default language or gender set. Prefix: %s",
			prefix,
		)
	}
	return fmt.Sprintf(
		"Server defaults: Language: %s, Gender: %s, Prefix: %s",
		g.Language.Localized(g.Language),
		g.Gender.Localized(g.Language),
		prefix,
	)
}
