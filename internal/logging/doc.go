// Package logging provides a simple leveled logger for thumbcache.
//
// Levels are DEBUG, INFO, WARN and ERROR, configured through the LOG_LEVEL
// environment variable (DEBUG=true forces debug). Output goes to stderr and,
// when EnableFile is called, to a size-rotated log file as well.
package logging
