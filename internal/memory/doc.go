// Package memory keeps decode workers inside the process memory budget.
//
// ConfigureFromEnv derives GOMEMLIMIT from MEMORY_LIMIT or the cgroup limit and
// MEMORY_RATIO (default 0.85) unless GOMEMLIMIT is already set. A Monitor
// samples the heap against that limit; pipeline workers call WaitIfPaused
// before each decode so a directory of 50MP images cannot push the process
// past its limit. Work pauses at CriticalWaterMark and resumes below
// HighWaterMark.
package memory
