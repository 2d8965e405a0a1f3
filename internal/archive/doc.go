// Package archive opens, enumerates, reads and rewrites comic book
// containers.
//
// Each container family (CBZ/ZIP, CBR/RAR, CB7/7z) is served by an Adaptor
// bound to a detected content subtype in an immutable Registry. Handles are
// owned by a single goroutine from open to close. Writes go to a temporary
// sibling of the target and only replace it in Finish, so an aborted or
// failed rewrite leaves the original file byte-for-byte intact.
package archive
