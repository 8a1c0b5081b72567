package license

import (
	"errors"
	"fmt"
	"time"
)

var ErrMachineMismatch = errors.New("token issued for another node")

// Manager issues and validates operator tokens for one node.
type Manager struct {
	Secret string
	Node   string
}

func NewManager(secret, node string) *Manager {
	return &Manager{Secret: secret, Node: node}
}

// Issue signs a token for subject bound to this node.
func (m *Manager) Issue(subject string, ttl time.Duration) (string, error) {
	return CreateToken(m.Secret, subject, m.Node, ttl)
}

// Validate returns the token subject when the token is valid on this node.
func (m *Manager) Validate(token string) (string, error) {
	claims, err := ParseToken(m.Secret, token)
	if err != nil {
		return "", fmt.Errorf("parse token: %w", err)
	}
	if claims.Machine != m.Node {
		return "", ErrMachineMismatch
	}
	return claims.Subject, nil
}
