package main

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"
)

var userPersistenceFile = filepath.Join(dataDir, "users.json")

const sessionTimeout = 1 * time.Hour

type User struct {
	Username     string      `json:"username"`
	PasswordHash string      `json:"password_hash"`
	Prefs        Preferences `json:"prefs,omitempty"`
}

type Session struct {
	Token     string
	Username  string
	ExpiresAt time.Time
}

// Preferences holds user-level settings common across sheets
type Preferences struct {
	VisibleRows int `json:"visible_rows,omitempty"`
	VisibleCols int `json:"visible_cols,omitempty"`
}

type UserManager struct {
	users    map[string]*User
	sessions map[string]*Session // token -> Session
	mu       sync.RWMutex
}

var globalUserManager = &UserManager{
	users:    make(map[string]*User),
	sessions: make(map[string]*Session),
}

func (um *UserManager) Register(username, password string) error {
	um.mu.Lock()
	defer um.mu.Unlock()

	// Disallow the reserved username "system" (case-insensitive); audit
	// entries written by the server itself use it.
	if strings.EqualFold(strings.TrimSpace(username), "system") {
		return errors.New("reserved username")
	}

	if _, exists := um.users[username]; exists {
		return errors.New("user already exists")
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	user := &User{
		Username:     username,
		PasswordHash: string(hashedPassword),
		Prefs:        Preferences{VisibleRows: 15, VisibleCols: 7},
	}

	um.users[username] = user
	um.saveUsersLocked()
	return nil
}

func (um *UserManager) Login(username, password string) (string, error) {
	um.mu.RLock()
	user, exists := um.users[username]
	um.mu.RUnlock()

	if !exists {
		return "", errors.New("invalid credentials")
	}

	err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password))
	if err != nil {
		return "", errors.New("invalid credentials")
	}

	// Generate session token
	token, err := generateToken()
	if err != nil {
		return "", errors.New("failed to generate session token")
	}

	session := &Session{
		Token:     token,
		Username:  username,
		ExpiresAt: time.Now().Add(sessionTimeout),
	}

	um.mu.Lock()
	um.sessions[token] = session
	um.mu.Unlock()

	// Start cleanup goroutine for expired sessions
	go um.cleanupExpiredSessions()

	return token, nil
}

// generateToken creates a secure random token
func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

// ValidateToken checks if a token is valid and not expired
func (um *UserManager) ValidateToken(token string) (string, error) {
	um.mu.RLock()
	session, exists := um.sessions[token]
	um.mu.RUnlock()

	if !exists {
		return "", errors.New("invalid token")
	}

	if time.Now().After(session.ExpiresAt) {
		um.mu.Lock()
		delete(um.sessions, token)
		um.mu.Unlock()
		return "", errors.New("session expired")
	}

	return session.Username, nil
}

// Logout removes a session token
func (um *UserManager) Logout(token string) {
	um.mu.Lock()
	defer um.mu.Unlock()
	delete(um.sessions, token)
}

// cleanupExpiredSessions removes expired sessions periodically
func (um *UserManager) cleanupExpiredSessions() {
	um.mu.Lock()
	defer um.mu.Unlock()

	now := time.Now()
	for token, session := range um.sessions {
		if now.After(session.ExpiresAt) {
			delete(um.sessions, token)
		}
	}
}

// Exists returns true if a user with the given username exists
func (um *UserManager) Exists(username string) bool {
	um.mu.RLock()
	defer um.mu.RUnlock()
	_, ok := um.users[username]
	return ok
}

func (um *UserManager) GetPreferences(username string) (Preferences, error) {
	um.mu.RLock()
	defer um.mu.RUnlock()
	user, ok := um.users[username]
	if !ok {
		return Preferences{}, errors.New("user not found")
	}
	return user.Prefs, nil
}

func (um *UserManager) UpdatePreferences(username string, prefs Preferences) error {
	um.mu.Lock()
	defer um.mu.Unlock()
	user, ok := um.users[username]
	if !ok {
		return errors.New("user not found")
	}
	user.Prefs = prefs
	um.saveUsersLocked()
	return nil
}

func (um *UserManager) ChangePassword(username, oldPassword, newPassword string) error {
	um.mu.Lock()
	defer um.mu.Unlock()
	user, ok := um.users[username]
	if !ok {
		return errors.New("user not found")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(oldPassword)); err != nil {
		return errors.New("invalid credentials")
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	user.PasswordHash = string(hashed)
	um.saveUsersLocked()
	return nil
}

func (um *UserManager) Load() {
	um.mu.Lock()
	defer um.mu.Unlock()

	file, err := os.Open(userPersistenceFile)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("Error opening users file: %v", err)
		}
		return
	}
	defer file.Close()

	var users map[string]*User
	if err := json.NewDecoder(file).Decode(&users); err != nil {
		log.Printf("Error decoding users file: %v", err)
		return
	}
	um.users = users
	log.Printf("Loaded %d users from disk", len(users))
}

// saveUsersLocked persists the user map. Caller must hold the lock.
func (um *UserManager) saveUsersLocked() {
	if err := ensureDataDir(); err != nil {
		log.Printf("Error creating data directory: %v", err)
		return
	}
	file, err := os.Create(userPersistenceFile)
	if err != nil {
		log.Printf("Error saving users: %v", err)
		return
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(um.users); err != nil {
		log.Printf("Error encoding users: %v", err)
	}
}
