// Package auth verifies the bearer tokens presented to the floor plan API.
//
// Tokens are HS256 JWTs issued by the platform's identity service. This
// service stores no credentials; it checks the signature, the expiry and
// the role claim, then maps the role to a static permission set:
//
//   - viewer: open floor plan sessions
//   - editor: viewer plus writing widget and building configuration
//   - admin: editor plus system endpoints
package auth
