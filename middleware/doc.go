// Package middleware exposes HTTP adapters for clubauth.Engine validation:
// a request gate and a per-route permission check.
//
// # Guards
//
//   - [Guard] authenticates every request via Engine.Validate and injects
//     the result into the request context.
//   - [RequirePermission] layers a permission check on top of an already
//     guarded route.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. It does NOT
// implement authentication logic itself; every decision is delegated to
// Engine.Validate.
//
// # What this package must NOT do
//
//   - Parse or create tokens directly (delegates to Engine).
//   - Access Redis (Engine handles I/O).
//   - Make authorization decisions beyond what Engine and the declared
//     permission express.
package middleware
