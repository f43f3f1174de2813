// Package sqlitestate emulates room state storage in a local SQLite file.
//
// It serves offline development and tests where no homeserver is available.
// State content is stored as JSON per (room, event type, state key) and room
// aliases live in their own table.
package sqlitestate
