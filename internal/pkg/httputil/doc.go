// Package httputil provides shared HTTP response/request utilities for handlers.
//
// Every handler file should use these helpers instead of writing raw
// http.ResponseWriter calls. This keeps the webhook contract ({"message"} on
// success, {"error"} on failure) identical across endpoints and makes sure
// internal error detail only ever reaches the log.
package httputil
