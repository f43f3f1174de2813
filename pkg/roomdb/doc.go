// Package roomdb persists application key/value data in chat room state.
//
// A Database maps Put and Get calls onto one room state event type. In
// single-key mode every key of a room shares one state entry whose content is
// a mapping of key to value. In per-key mode each key owns its own state entry
// and values must themselves be mappings. Puts are read-modify-write with a
// shallow overlay and are skipped when nothing would change.
package roomdb
