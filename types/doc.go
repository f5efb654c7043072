// Package types defines shared error codes and structured errors used
// across the workflow engine.
package types
