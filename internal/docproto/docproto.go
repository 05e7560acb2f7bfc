// Package docproto holds the wire-level contract between a load-generator
// client and the document collaboration server.
package docproto

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

const (
	// DocPath is the document WebSocket endpoint.
	DocPath = "/v1/doc"
	// DocID is the document every simulated client opens.
	DocID = "doc"
	// AuthToken is a placeholder, not a real credential.
	AuthToken = "token"

	SchemeWS  = "ws"
	SchemeWSS = "wss"
)

// AuthMessage is sent verbatim by every session. The server parses it as
// JSON; the exact bytes (including spacing) are part of the contract.
const AuthMessage = `{"type": "auth", "token": "token"}`

// Message types exchanged during the handshake.
const (
	TypeAuth       = "auth"
	TypeAuthResult = "authResult"
	TypeDoc        = "doc"
	TypeUpdate     = "update"
)

// ErrEmptyTarget is returned when no host:port was supplied.
var ErrEmptyTarget = errors.New("target address is empty")

// TargetURL builds <scheme>://<addr>/v1/doc?docId=doc.
func TargetURL(scheme, addr string) (*url.URL, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, ErrEmptyTarget
	}
	if scheme == "" {
		scheme = SchemeWS
	}
	if scheme != SchemeWS && scheme != SchemeWSS {
		return nil, fmt.Errorf("unsupported scheme: %s", scheme)
	}
	if strings.Contains(addr, "://") || strings.ContainsAny(addr, "/?#") {
		return nil, fmt.Errorf("target must be host:port, got %q", addr)
	}

	q := url.Values{}
	q.Set("docId", DocID)
	return &url.URL{
		Scheme:   scheme,
		Host:     addr,
		Path:     DocPath,
		RawQuery: q.Encode(),
	}, nil
}

// AuthRequest is the decoded form of AuthMessage.
type AuthRequest struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

// User describes the authenticated principal in an authResult.
type User struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	IsAnonymous bool   `json:"isAnonymous"`
}

// AuthResult is the first introduction message.
type AuthResult struct {
	Type    string `json:"type"`
	Success bool   `json:"success"`
	Issue   string `json:"issue,omitempty"`
	User    *User  `json:"user,omitempty"`
	Authz   string `json:"authz,omitempty"`
}

// DocIntro is the second introduction message.
type DocIntro struct {
	Type     string `json:"type"`
	DocID    string `json:"docId"`
	ClientID string `json:"clientId"`
	Version  int    `json:"version"`
}

// Update is a post-introduction message; clients discard it.
type Update struct {
	Type string `json:"type"`
	Seq  int    `json:"seq"`
}
