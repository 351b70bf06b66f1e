package profile

import "time"

// Profile holds a user's personalization attributes. Keyed by the user id,
// one row per user, every attribute optional. The command pipeline only
// reads profiles; writes come from the profile HTTP endpoint.
type Profile struct {
	ID         string    `gorm:"type:uuid;primaryKey" json:"id"`
	Nickname   *string   `gorm:"type:varchar(64)" json:"nickname,omitempty"`
	Age        *int      `json:"age,omitempty"`
	Gender     *string   `gorm:"type:varchar(32)" json:"gender,omitempty"`
	Height     *float64  `json:"height,omitempty"`
	HeightUnit *string   `gorm:"type:varchar(8)" json:"height_unit,omitempty"`
	Weight     *float64  `json:"weight,omitempty"`
	WeightUnit *string   `gorm:"type:varchar(8)" json:"weight_unit,omitempty"`
	Bio        *string   `gorm:"type:text" json:"bio,omitempty"`
	AvatarURL  *string   `gorm:"type:text" json:"avatar_url,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (Profile) TableName() string { return "profiles" }
