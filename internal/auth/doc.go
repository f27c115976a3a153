// Package auth protects the concierge admin API.
//
// Two credentials are accepted:
//
//   - X-API-Key: a shared key, checked against a bcrypt hash (admin.api_key_hash)
//   - Authorization: Bearer <jwt>: an HS256 token with scope "admin",
//     signed with admin.jwt_secret and minted by `concierge-admin token`
//
// AdminMiddleware attaches an AuthContext describing the caller; handlers
// read it back with FromContext.
package auth
