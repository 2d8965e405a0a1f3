// Package p7zip wraps the external 7z command line tool used to produce 7z
// containers. Reading is done in process; only archive creation shells out.
package p7zip
