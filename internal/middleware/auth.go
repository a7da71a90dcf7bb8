// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package middleware

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"

	"golang.org/x/crypto/bcrypt"
)

// contextKey is an unexported type for context keys to prevent collisions.
type contextKey string

// AdminKey is the context key for the authenticated admin user name.
const AdminKey contextKey = "admin"

// AdminAuth protects the cache administration endpoints with HTTP basic
// auth checked against a bcrypt hash. With an empty hash every request is
// rejected, so the endpoints are closed until a password is configured.
func AdminAuth(user, passwordHash string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u, p, ok := r.BasicAuth()
			if !ok || passwordHash == "" || !checkAdmin(user, passwordHash, u, p) {
				if ok {
					slog.Warn("admin auth failed", "user", u, "remote", clientIP(r))
				}
				w.Header().Set("WWW-Authenticate", `Basic realm="razor-mediator admin", charset="UTF-8"`)
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			ctx := context.WithValue(r.Context(), AdminKey, u)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// checkAdmin compares the user in constant time and the password with
// bcrypt. The hash is checked even for a wrong user name.
func checkAdmin(wantUser, hash, user, password string) bool {
	userOK := subtle.ConstantTimeCompare([]byte(user), []byte(wantUser)) == 1
	passOK := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
	return userOK && passOK
}

// AdminFromCtx returns the authenticated admin user, or "".
func AdminFromCtx(ctx context.Context) string {
	u, _ := ctx.Value(AdminKey).(string)
	return u
}
