package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

type Privilege string

const (
	PrivilegeDefault Privilege = "default"
	PrivilegeAdmin   Privilege = "admin"
)

// Identity classifies an authenticated user as a patient or as a staff member
// with a privilege tier. Only the constructors below produce values, so a
// patient can never carry a privilege tier.
type Identity struct {
	patient   bool
	privilege Privilege
}

func PatientIdentity() Identity {
	return Identity{patient: true}
}

func StaffIdentity(privilege Privilege) Identity {
	if privilege != PrivilegeAdmin {
		privilege = PrivilegeDefault
	}
	return Identity{privilege: privilege}
}

// ParseIdentity maps the upstream role string, and the optional tipo field of
// the upstream user object, onto an Identity. Unknown roles fall back to
// default staff.
func ParseIdentity(role string, tipo string) Identity {
	switch strings.ToLower(strings.TrimSpace(role)) {
	case "patient":
		return PatientIdentity()
	case "admin":
		return StaffIdentity(PrivilegeAdmin)
	}

	if strings.EqualFold(strings.TrimSpace(tipo), string(PrivilegeAdmin)) {
		return StaffIdentity(PrivilegeAdmin)
	}

	return StaffIdentity(PrivilegeDefault)
}

func (i Identity) IsPatient() bool {
	return i.patient
}

func (i Identity) IsAdmin() bool {
	return !i.patient && i.privilege == PrivilegeAdmin
}

// Privilege returns the staff tier; patients report the default tier.
func (i Identity) Privilege() Privilege {
	if i.patient || i.privilege == "" {
		return PrivilegeDefault
	}
	return i.privilege
}

// Role is the wire value stored under the "role" key of the merged record.
func (i Identity) Role() string {
	if i.patient {
		return "patient"
	}
	return string(i.Privilege())
}

func (i Identity) String() string {
	if i.patient {
		return "patient"
	}
	return "staff/" + string(i.Privilege())
}

// User is the merged user record: the upstream user object plus the role and
// first_access values returned next to it by the login exchange. Fields that
// the console does not interpret are kept in Extra so the record round-trips.
type User struct {
	ID          string
	Name        string
	Email       string
	Identity    Identity
	FirstAccess bool
	Extra       map[string]json.RawMessage
}

func (u User) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(u.Extra)+6)
	for key, raw := range u.Extra {
		out[key] = raw
	}

	if _, ok := out["id"]; !ok && u.ID != "" {
		out["id"] = u.ID
	}
	if _, ok := out["nome"]; !ok && u.Name != "" {
		out["nome"] = u.Name
	}
	if _, ok := out["email"]; !ok && u.Email != "" {
		out["email"] = u.Email
	}
	if !u.Identity.IsPatient() {
		out["tipo"] = string(u.Identity.Privilege())
	}
	out["role"] = u.Identity.Role()
	out["first_access"] = u.FirstAccess

	return json.Marshal(out)
}

func (u *User) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	if fields == nil {
		return fmt.Errorf("user record is null")
	}

	id, err := scalarString(fields["id"])
	if err != nil {
		return fmt.Errorf("decode id: %w", err)
	}
	name, err := scalarString(fields["nome"])
	if err != nil {
		return fmt.Errorf("decode nome: %w", err)
	}
	if name == "" {
		if name, err = scalarString(fields["name"]); err != nil {
			return fmt.Errorf("decode name: %w", err)
		}
	}
	email, err := scalarString(fields["email"])
	if err != nil {
		return fmt.Errorf("decode email: %w", err)
	}
	role, err := scalarString(fields["role"])
	if err != nil {
		return fmt.Errorf("decode role: %w", err)
	}
	tipo, err := scalarString(fields["tipo"])
	if err != nil {
		return fmt.Errorf("decode tipo: %w", err)
	}

	var firstAccess bool
	if raw, ok := fields["first_access"]; ok && !isNull(raw) {
		if err := json.Unmarshal(raw, &firstAccess); err != nil {
			return fmt.Errorf("decode first_access: %w", err)
		}
	}

	delete(fields, "role")
	delete(fields, "first_access")
	delete(fields, "tipo")

	*u = User{
		ID:          id,
		Name:        name,
		Email:       email,
		Identity:    ParseIdentity(role, tipo),
		FirstAccess: firstAccess,
		Extra:       fields,
	}

	return nil
}

// WithLoginResult merges the role and first_access values of a login response
// into the upstream user record.
func (u User) WithLoginResult(role string, firstAccess bool) User {
	merged := u.clone()
	merged.Identity = ParseIdentity(role, string(u.Identity.Privilege()))
	merged.FirstAccess = firstAccess
	return merged
}

func (u User) clone() User {
	out := u
	if u.Extra != nil {
		out.Extra = make(map[string]json.RawMessage, len(u.Extra))
		for key, raw := range u.Extra {
			out.Extra[key] = append(json.RawMessage(nil), raw...)
		}
	}
	return out
}

// Clone returns a deep copy safe to hand out to readers.
func (u User) Clone() User {
	return u.clone()
}

func scalarString(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || isNull(raw) {
		return "", nil
	}

	trimmed := bytes.TrimSpace(raw)
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return "", err
		}
		return s, nil
	}

	var n json.Number
	if err := json.Unmarshal(trimmed, &n); err != nil {
		return "", err
	}
	return n.String(), nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
