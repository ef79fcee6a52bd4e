// Package browser wires the thumbnail pipeline, the per-directory stores,
// the path resolver and the view cache behind one Service, the surface a
// directory browser or the CLI talks to.
package browser
