// Package resolver finds the current location of a path whose network
// volume was remounted under a different name.
//
// Resolution runs in passes and stops at the first hit:
//
//  0. the normalized path, if it exists as given
//  1. every mounted volume root joined with every suffix of the path,
//     longest candidate first
//  2. the same search for ever shorter ancestors of the path, with the
//     remaining segments reattached below the ancestor found; a segment
//     that does not exist is replaced by the most similar directory entry
//     when the similarity reaches the threshold
//
// Candidates that are a bare volume root, or that look into a volume's own
// view of the volumes directory, are never returned. When no pass finds
// anything, Resolve returns ErrNotFound instead of guessing.
package resolver
