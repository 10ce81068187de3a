// Package storage writes per-page artifacts for harvested queries.
//
// Each successful, non-empty page of a query becomes one file named
// <key>_<page>.json (or .csv), written through a temporary file and an
// atomic rename. Keys are mapped to file names with SafeName; keys that
// need escaping carry a short digest so no two keys share a file.
package storage
