// Package discordblue implements a Discord bot for a repair shop's staff
// server, built around a registry of "doodads" (groups of slash commands)
// that can be loaded and unloaded at runtime.
//
// Components of the package include:
//
//   - Bot: owns the Discord session, database, HTTP API and doodad registry.
//   - StateStore: the bot-managed TOML document (guild, channels, schools,
//     printers, training checkpoints), reloaded live when edited on disk.
//   - PrintNode and Shippo: REST clients for label printing and shipping.
//   - TrainingCollector: walks channel history to build conversation datasets.
//   - LLM: fine-tunes and queries per-user chat models.
//
// Doodads bundled with the bot:
//
//   - setup: /sync, /clear and the /setup group (always loaded).
//   - template_doodad: /hello.
//   - asset_label_doodad: /asset-tag and /add-school.
//   - impersonate_doodad: /impersonate.
package discordblue
