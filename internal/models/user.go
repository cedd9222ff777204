package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Role is the closed set of account roles.
type Role string

const (
	RoleUser      Role = "user"
	RoleModerator Role = "moderator"
	RoleAdmin     Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleModerator, RoleAdmin:
		return true
	}
	return false
}

// Rank orders roles for listings (admin first).
func (r Role) Rank() int {
	switch r {
	case RoleAdmin:
		return 2
	case RoleModerator:
		return 1
	default:
		return 0
	}
}

// ParseRole converts s into a Role, rejecting unknown values.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// UserStatus marks whether an account may sign in.
type UserStatus string

const (
	UserStatusActive   UserStatus = "Active"
	UserStatusInactive UserStatus = "Inactive"
)

// UserType is a single member of the UserTypes set.
type UserType uint8

const (
	UserTypeCreator UserType = 1 << iota
	UserTypeDonor
)

var userTypeNames = []struct {
	t    UserType
	name string
}{
	{UserTypeCreator, "creator"},
	{UserTypeDonor, "donor"},
}

// ParseUserType converts a name into a UserType.
func ParseUserType(s string) (UserType, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for _, n := range userTypeNames {
		if n.name == name {
			return n.t, nil
		}
	}
	return 0, fmt.Errorf("unknown user type %q", s)
}

func (t UserType) String() string {
	for _, n := range userTypeNames {
		if n.t == t {
			return n.name
		}
	}
	return fmt.Sprintf("UserType(%d)", uint8(t))
}

// UserTypes is a set of UserType values stored as a bit mask.
// It serializes to JSON as an array of names.
type UserTypes uint8

// NewUserTypes builds a set from the given members.
func NewUserTypes(types ...UserType) UserTypes {
	var set UserTypes
	for _, t := range types {
		set |= UserTypes(t)
	}
	return set
}

// Has reports whether t is in the set.
func (s UserTypes) Has(t UserType) bool {
	return s&UserTypes(t) != 0
}

// With returns the set with t added.
func (s UserTypes) With(t UserType) UserTypes {
	return s | UserTypes(t)
}

// Names lists the members in a stable order.
func (s UserTypes) Names() []string {
	names := make([]string, 0, len(userTypeNames))
	for _, n := range userTypeNames {
		if s.Has(n.t) {
			names = append(names, n.name)
		}
	}
	return names
}

// ParseUserTypes builds a set from names, rejecting unknown entries.
func ParseUserTypes(names []string) (UserTypes, error) {
	var set UserTypes
	for _, name := range names {
		t, err := ParseUserType(name)
		if err != nil {
			return 0, err
		}
		set = set.With(t)
	}
	return set, nil
}

func (s UserTypes) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Names())
}

func (s *UserTypes) UnmarshalJSON(data []byte) error {
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return err
	}
	set, err := ParseUserTypes(names)
	if err != nil {
		return err
	}
	*s = set
	return nil
}

// User is an account on the platform.
type User struct {
	ID        string     `gorm:"primaryKey;size:36" json:"id" bson:"_id"`
	Username  string     `gorm:"uniqueIndex;size:50;not null" json:"username" bson:"username"`
	Email     string     `gorm:"uniqueIndex;size:255;not null" json:"email" bson:"email"`
	Password  string     `gorm:"not null" json:"-" bson:"password"`
	Role      Role       `gorm:"size:16;not null;default:user;index" json:"role" bson:"role"`
	UserType  UserTypes  `gorm:"not null;default:0" json:"userType" bson:"user_type"`
	Status    UserStatus `gorm:"size:16;not null;default:Active" json:"status" bson:"status"`
	CreatedAt time.Time  `json:"createdAt" bson:"created_at"`
	UpdatedAt time.Time  `json:"updatedAt" bson:"updated_at"`
}

// BeforeCreate assigns an id and fills defaults.
func (u *User) BeforeCreate(_ *gorm.DB) error {
	u.Prepare()
	return nil
}

// Prepare assigns an id and the default role and status when unset.
// The gorm hook calls it; document stores call it before insert.
func (u *User) Prepare() {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.Role == "" {
		u.Role = RoleUser
	}
	if u.Status == "" {
		u.Status = UserStatusActive
	}
}

// IsAdmin reports whether the user holds the admin role.
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

// IsActive reports whether the account may sign in.
func (u *User) IsActive() bool {
	return u != nil && u.Status != UserStatusInactive
}
