// Package pipeline produces previews for a directory listing in the
// background.
//
// A Run opens the directory's store, looks up every entry in one batch and
// reports cached previews straight away. Entries without a current preview
// are handed, smallest first, to a fixed pool of workers that decode,
// downsample and save them. Results arrive on Run.Events in completion
// order:
//   - one ItemReady per entry, including folders and unsupported files
//   - a single Done carrying the run's statistics
//
// The channel is closed after Done. Cancelling a run stops dispatch; work
// already in a worker's hands still completes and is reported.
//
// When the store cannot be opened the run continues without persistence
// and its statistics are marked Degraded.
package pipeline
