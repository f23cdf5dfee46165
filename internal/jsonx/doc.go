// Package jsonx is the JSON codec used for persisted ledgers and pushed
// snapshots. It uses sonic unless built with the nojsonsimd tag.
package jsonx
