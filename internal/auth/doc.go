// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Holding Console Contributors

// Package auth implements credential handling for the holding console.
//
// # Domain Types
//
// UserRecord is the stored form of an operator account, including the
// tagged password hash. User is the public view returned to callers and
// never carries hash material.
//
// A record with a nil PasswordHash is in bootstrap state: the only
// accepted password is the login itself, and the only way out is a
// successful RotatePassword.
//
// # Services
//
//   - CredentialService - Authenticate and RotatePassword
//   - SchemeHasher - tagged password hashing (sha256, argon2id, bcrypt)
//
// Storage is abstracted by UserStore; implementations live in the
// postgres and sqlite subpackages.
package auth
