// Package matrix implements room state access over the Matrix client-server
// API. StateClient reads and writes state events and RoomDirectory resolves
// configured room names and aliases to room ids.
package matrix
