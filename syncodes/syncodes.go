// Package syncodes holds the status codes returned to websocket clients.
package syncodes

const (
	// StatusSuccess is given when the requested operation completed.
	StatusSuccess = "SUCCESS"

	// StatusFailure is given when the operation failed for a reason with no
	// more specific code (usually a backing store error).
	StatusFailure = "FAILURE"

	// StatusNotSignedIn is given when the operation requires a caller
	// identity and none is available. The client should prompt for login.
	StatusNotSignedIn = "NOT_SIGNED_IN"

	// StatusNotFound is given when the target document no longer exists.
	StatusNotFound = "NOT_FOUND"

	// StatusNotAuthorized is given when the caller does not own the
	// document it is trying to mutate.
	StatusNotAuthorized = "NOT_AUTHORIZED"

	// StatusInvalidArgument is given when the request names an unknown
	// visibility tier, a non-permutation reorder, or an unknown doc kind.
	StatusInvalidArgument = "INVALID_ARGUMENT"

	// StatusEndpointNotValid is given when the message is using an
	// unsupported endpoint.
	StatusEndpointNotValid = "ENDPOINT_NOT_VALID"
)
