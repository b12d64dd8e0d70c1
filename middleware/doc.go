// Package middleware puts the famguard engine in front of net/http handlers.
//
// [Gate] runs the request checks in a fixed order: bearer credential, the
// static service credential or an access token, CSRF on mutating methods,
// target profile resolution and the permission engine. Failures answer with
// a uniform 401 "unauthorized" or 403 "forbidden"; the reason is logged,
// never sent. [ClientInfo] feeds the caller's IP and user agent to the
// engine.
//
// The package holds no authentication logic of its own. Every decision is
// delegated to the engine.
package middleware
