// Package auth provides authentication and dynamic authorization for the
// laboratory information system.
//
// It implements:
//   - Argon2id password hashing (PHC string encoding)
//   - Short-lived access and longer-lived refresh tokens (HS256 JWTs carrying
//     only the user id), with refresh tokens persisted per device
//   - A data-driven permission model: roles, protected resources
//     (method + path template) and their join rows all live in the database,
//     each with its own active flag
//   - A per-request authorization state machine that re-resolves the caller's
//     effective roles and the resource grant on every request, so revoking a
//     role or deactivating a resource binds on the very next request
//
// Roles are rows, not an enum: the seed set (PATIENT, DOCTOR, ADMIN, STAFF)
// exists for bootstrap only. The legacy coarse role on the user record is used
// solely as a fallback when a user has no active role links at all.
package auth
