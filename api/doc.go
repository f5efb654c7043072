// Package api defines the wire types of the HTTP surface: request and
// response DTOs plus converters from the engine's internal structs.
package api
