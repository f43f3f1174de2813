// Package boltstate emulates room state storage in an embedded bbolt file.
package boltstate
