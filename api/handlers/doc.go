// Package handlers implements the HTTP endpoints of the engine: message
// submission, workflow inspection, tool run resolution, log access, the
// live event stream, and health probes.
package handlers
