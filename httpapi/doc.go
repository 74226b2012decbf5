// Package httpapi mounts the authentication surface on a gorilla/mux
// router: login, refresh, logout, validation, password recovery, and
// session introspection.
//
// The refresh token travels in an HttpOnly, Secure, SameSite=Strict cookie
// scoped to the auth path; browsers never expose it to script. API clients
// may instead send it in the refresh request body.
//
// # Architecture boundaries
//
// Handlers decode requests, call the Engine, and encode responses. All
// authentication decisions live in the Engine; all cookie policy lives here.
package httpapi
