// Package entry routes archive entries to the loaders that interpret them.
//
// Routing is decided by an exact basename mask table first (ComicInfo.xml)
// and otherwise by sniffing the entry bytes; names are never trusted to
// identify image data.
package entry
