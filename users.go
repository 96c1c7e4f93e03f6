package main

import (
	"database/sql"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// HashPassword hashes a plaintext password with bcrypt at the default cost.
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

// CheckPasswordHash reports whether password matches the stored hash.
func CheckPasswordHash(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// CreateUser provisions a reviewer with a hashed password and a group
// assignment.
func CreateUser(db *sql.DB, cfg Config, username, password string, groupNo int, isAdmin bool) (User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return User{}, fmt.Errorf("username is required")
	}
	if len(password) < 6 {
		return User{}, fmt.Errorf("password too short (need at least 6 characters)")
	}
	if groupNo < 1 || groupNo > cfg.GroupCount {
		return User{}, fmt.Errorf("group %d out of range 1..%d", groupNo, cfg.GroupCount)
	}

	hash, err := HashPassword(password)
	if err != nil {
		return User{}, err
	}
	u := User{Username: username, PasswordHash: hash, GroupNo: groupNo, IsAdmin: isAdmin}
	id, err := InsertUser(db, u)
	if err != nil {
		return User{}, err
	}
	u.ID = id
	return u, nil
}

// Authenticate looks a reviewer up by username and verifies the password.
func Authenticate(db *sql.DB, username, password string) (User, error) {
	u, err := GetUserByUsername(db, username)
	if err == sql.ErrNoRows {
		return User{}, fmt.Errorf("unknown user %q", username)
	}
	if err != nil {
		return User{}, err
	}
	if !CheckPasswordHash(password, u.PasswordHash) {
		return User{}, fmt.Errorf("wrong password for %q", username)
	}
	return u, nil
}
