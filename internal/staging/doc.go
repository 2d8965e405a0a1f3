// Package staging maintains the working files under staging_dir, such as the
// claim lock files left behind by finished or crashed imports.
package staging
