package memory

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/filmgrid/auth-service/internal/models"
	"github.com/filmgrid/auth-service/internal/storage"
)

// Storage is a map-backed storage.Storage used by tests and local runs.
// WithinTx runs the callback against the same store: there is no rollback,
// which is acceptable for the single-writer scenarios the tests exercise.
type Storage struct {
	mu       sync.RWMutex
	nextID   int64
	users    map[int64]*models.User
	sessions map[string]*models.Session
	tokens   map[string]*models.RefreshToken
	roles    map[int64][]string
	perms    map[int64][]string
	audits   []models.AuditEntry

	// FailAudit makes AppendAudit fail, for exercising best-effort semantics.
	FailAudit bool
}

func NewStorage() *Storage {
	return &Storage{
		nextID:   1,
		users:    make(map[int64]*models.User),
		sessions: make(map[string]*models.Session),
		tokens:   make(map[string]*models.RefreshToken),
		roles:    make(map[int64][]string),
		perms:    make(map[int64][]string),
	}
}

func (m *Storage) WithinTx(ctx context.Context, fn func(storage.Storage) error) error {
	return fn(m)
}

// SeedUser inserts a user with roles and permission codes, for tests.
func (m *Storage) SeedUser(user *models.User, roles, permCodes []string) *models.User {
	m.mu.Lock()
	defer m.mu.Unlock()

	if user.ID == 0 {
		user.ID = m.nextID
		m.nextID++
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	m.users[user.ID] = user
	m.roles[user.ID] = roles
	m.perms[user.ID] = permCodes
	return user
}

func (m *Storage) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, storage.ErrUserNotFound
}

func (m *Storage) FindUserByUsername(ctx context.Context, username string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, storage.ErrUserNotFound
}

func (m *Storage) FindUserByID(ctx context.Context, id int64) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, storage.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *Storage) FindUserByProviderSub(ctx context.Context, providerSub string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if u.ProviderSub != "" && u.ProviderSub == providerSub {
			cp := *u
			return &cp, nil
		}
	}
	return nil, storage.ErrUserNotFound
}

func (m *Storage) CreateUser(ctx context.Context, user *models.User) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user.ID = m.nextID
	m.nextID++
	user.CreatedAt = time.Now().UTC()
	cp := *user
	m.users[user.ID] = &cp
	return user, nil
}

func (m *Storage) UpdateUserPassword(ctx context.Context, userID int64, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return storage.ErrUserNotFound
	}
	u.PasswordHash = passwordHash
	return nil
}

func (m *Storage) LinkProviderSub(ctx context.Context, userID int64, providerSub string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok || u.ProviderSub != "" {
		return storage.ErrUserNotFound
	}
	u.ProviderSub = providerSub
	return nil
}

func (m *Storage) AssignRole(ctx context.Context, userID int64, roleName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.roles[userID] {
		if r == roleName {
			return nil
		}
	}
	m.roles[userID] = append(m.roles[userID], roleName)
	return nil
}

func (m *Storage) CreateSession(ctx context.Context, session *models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *session
	m.sessions[session.ID] = &cp
	return nil
}

func (m *Storage) GetSession(ctx context.Context, sessionID string) (*models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, storage.ErrSessionNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *Storage) TouchSession(ctx context.Context, sessionID string, seenAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[sessionID]; ok {
		s.LastSeenAt = seenAt
	}
	return nil
}

func (m *Storage) MarkSessionRevoked(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[sessionID]; ok {
		s.IsRevoked = true
	}
	return nil
}

func (m *Storage) MarkAllSessionsRevokedForUser(ctx context.Context, userID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var count int64
	for _, s := range m.sessions {
		if s.UserID == userID && !s.IsRevoked {
			s.IsRevoked = true
			count++
		}
	}
	return count, nil
}

func (m *Storage) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tokens[token.TokenHash]; ok {
		return storage.ErrDuplicateToken
	}
	cp := *token
	m.tokens[token.TokenHash] = &cp
	return nil
}

func (m *Storage) GetRefreshToken(ctx context.Context, tokenHash string) (*models.RefreshToken, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tokens[tokenHash]
	if !ok {
		return nil, storage.ErrTokenNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *Storage) RevokeRefreshToken(ctx context.Context, tokenHash, byIP, replacedByHash string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[tokenHash]
	if !ok || !t.IsActive(at) {
		return false, nil
	}
	revoked := at
	t.RevokedAt = &revoked
	t.RevokedByIP = byIP
	t.ReplacedByHash = replacedByHash
	return true, nil
}

func (m *Storage) RevokeTokensBySession(ctx context.Context, userID int64, sessionID, byIP string, at time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var count int64
	for _, t := range m.tokens {
		if t.UserID == userID && t.SessionID == sessionID && t.IsActive(at) {
			revoked := at
			t.RevokedAt = &revoked
			t.RevokedByIP = byIP
			count++
		}
	}
	return count, nil
}

func (m *Storage) RevokeAllTokensForUser(ctx context.Context, userID int64, byIP string, at time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var count int64
	for _, t := range m.tokens {
		if t.UserID == userID && t.IsActive(at) {
			revoked := at
			t.RevokedAt = &revoked
			t.RevokedByIP = byIP
			count++
		}
	}
	return count, nil
}

func (m *Storage) RefreshTokenHashExists(ctx context.Context, tokenHash string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.tokens[tokenHash]
	return ok, nil
}

func (m *Storage) GetRoleNamesForUser(ctx context.Context, userID int64) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.roles[userID]...), nil
}

func (m *Storage) GetPermissionCodesForUser(ctx context.Context, userID int64) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.perms[userID]...), nil
}

func (m *Storage) AppendAudit(ctx context.Context, entry *models.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailAudit {
		return errors.New("audit sink unavailable")
	}
	entry.ID = int64(len(m.audits) + 1)
	m.audits = append(m.audits, *entry)
	return nil
}

// AuditEntries returns a copy of everything written so far, for tests.
func (m *Storage) AuditEntries() []models.AuditEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]models.AuditEntry(nil), m.audits...)
}
