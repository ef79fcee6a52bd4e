// Package mediatypes classifies files into decode families.
//
// It has no dependencies beyond the standard library so both the codec and
// the pipeline can import it. Classification is a static switch: an
// extension that is not listed is FamilyUnsupported, and each Family maps to
// exactly one decoder case in codec.Dispatcher.
//
//	mediatypes.Classify(".CR2")          // FamilyRaw
//	mediatypes.ClassifyPath("a/b.webm")  // FamilyVideo
//	mediatypes.Classify(".txt")          // FamilyUnsupported
package mediatypes
