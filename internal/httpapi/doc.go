// Package httpapi exposes the engine over HTTP: the auth endpoints, device
// management, family onboarding and a profile-gated access check.
//
// Every route except registration, login, refresh, logout, password reset,
// health and metrics sits behind the request gate in package middleware.
package httpapi
