// Package xivemotes implements a Discord bot that brings FFXIV emote
// log messages into chat. Users invoke emotes with a guild-configurable
// prefix (ex: `!hug @friend`), and the bot replies with the game's
// localized log message, inflected for the invoking user's configured
// language and gender.
//
// Key components of the package include:
//
//   - XIVEmotes: The main struct that encapsulates the bot's core functionality.
//   - Store: Persistence layer handling identity mapping, display settings,
//     the emote catalog, and the emote usage ledger.
//   - Discord: Handles Discord integration and message processing.
//   - Catalog: Loads emote definitions and message templates from XIVAPI,
//     and keeps the stored emote catalog in sync.
//   - API: A small read-only HTTP API exposing health and usage statistics.
//
// Discord users and guilds are identified externally by snowflake IDs,
// mapped on first sight to internal surrogate keys. Display preferences
// resolve with user-then-guild-then-default precedence: a user who has
// explicitly saved settings always wins; otherwise a configured guild
// applies; otherwise system defaults. Every successful emote invocation
// is recorded in an append-only ledger along with the set of users
// tagged in the message.
package xivemotes
