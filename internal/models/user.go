// internal/models/user.go
package models

import (
	"time"

	"golang.org/x/crypto/bcrypt"
)

type User struct {
	BaseModel
	Username     string     `json:"username" gorm:"uniqueIndex;size:50;not null"`
	Email        string     `json:"email" gorm:"uniqueIndex;size:255;not null"`
	PasswordHash string     `json:"-" gorm:"size:255;not null"`
	UserType     UserType   `json:"user_type" gorm:"type:varchar(20);not null"`
	Status       UserStatus `json:"status" gorm:"type:varchar(20);default:'active'"`
	// ChainAddress is the user's address on the access ledger. Required for
	// practitioners (grants are dispatched to it) and for patients (it is the
	// chain id grants are issued under).
	ChainAddress    string     `json:"chain_address,omitempty" gorm:"size:66;index"`
	Speciality      string     `json:"speciality,omitempty" gorm:"size:100"`
	ProfileData     JSONB      `json:"profile_data" gorm:"type:jsonb"`
	EmailVerifiedAt *time.Time `json:"email_verified_at"`
	LastLoginAt     *time.Time `json:"last_login_at"`

	// Relationships
	GrantedApprovals  []Approval      `json:"granted_approvals,omitempty" gorm:"foreignKey:PatientID"`
	ReceivedApprovals []Approval      `json:"received_approvals,omitempty" gorm:"foreignKey:PractitionerID"`
	MedicalRecords    []MedicalRecord `json:"medical_records,omitempty" gorm:"foreignKey:PatientID"`
}

func (u *User) SetPassword(password string) error {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = string(hashedPassword)
	return nil
}

func (u *User) CheckPassword(password string) error {
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password))
}
