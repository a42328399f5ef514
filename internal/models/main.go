// Package models defines the core data structures shared by the permission
// cache, the backend client and the gate.
package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// DefaultSuperAdminID is the user id the backend historically reserves for
// the super-admin account.
const DefaultSuperAdminID = "1"

// UserID identifies the authenticated principal. The backend sends it either
// as a JSON number or as a string; both decode to the same value.
type UserID string

// UnmarshalJSON accepts numbers and strings.
func (id *UserID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = UserID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("user id: %w", err)
	}
	*id = UserID(n.String())
	return nil
}

// PermissionMap maps a module name to the actions permitted on it.
type PermissionMap map[string][]string

// Payload is the resolved permission data for the signed-in user. It is what
// gets encrypted into the client storage slot.
type Payload struct {
	// CurrentUserID is the authenticated principal.
	CurrentUserID UserID `json:"currentUserId"`
	// IsSuperAdmin bypasses every permission check.
	IsSuperAdmin bool `json:"isSuperAdmin"`
	// ModuleWisePermissions holds the per-module action lists.
	ModuleWisePermissions PermissionMap `json:"moduleWisePermissions"`
}

// EncryptedBlob is the AEAD output persisted in the storage slot.
type EncryptedBlob struct {
	// IV is the base64-encoded 12-byte nonce.
	IV string `json:"iv"`
	// Ciphertext is the base64-encoded ciphertext with the tag appended.
	Ciphertext string `json:"data"`
}

// Complete reports whether both fields are present.
func (b EncryptedBlob) Complete() bool {
	return b.IV != "" && b.Ciphertext != ""
}

// BackendData is the "data" member of the permission endpoint response.
// IsSuperAdmin is a pointer so that older backends that omit it can be told
// apart from an explicit false.
type BackendData struct {
	CurrentUserID         UserID        `json:"currentUserId"`
	IsSuperAdmin          *bool         `json:"isSuperAdmin,omitempty"`
	ModuleWisePermissions PermissionMap `json:"moduleWisePermissions"`
}

// BackendResponse is the envelope returned by the permission endpoint.
type BackendResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Data    BackendData `json:"data"`
}

// StatusSuccess is the only envelope status that carries usable data.
const StatusSuccess = "success"

// ToPayload converts the backend data into a Payload. When the backend does
// not send an explicit super-admin flag, it is derived from superAdminID.
func (d BackendData) ToPayload(superAdminID string) Payload {
	p := Payload{
		CurrentUserID:         d.CurrentUserID,
		ModuleWisePermissions: d.ModuleWisePermissions,
	}
	if p.ModuleWisePermissions == nil {
		p.ModuleWisePermissions = PermissionMap{}
	}
	switch {
	case d.IsSuperAdmin != nil:
		p.IsSuperAdmin = *d.IsSuperAdmin
	case superAdminID != "":
		p.IsSuperAdmin = string(d.CurrentUserID) == superAdminID
	}
	return p
}
