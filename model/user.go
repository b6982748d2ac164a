package model

// User is owned by the accounts subsystem; only public profile fields are read here.
type User struct {
	ID        uint    `gorm:"primaryKey" json:"id"`
	Name      string  `gorm:"not null" json:"name"`
	AvatarURL *string `json:"avatar_url"`
	Role      string  `gorm:"size:20" json:"-"`
}

// Property is owned by the listings subsystem.
type Property struct {
	ID       uint            `gorm:"primaryKey" json:"id"`
	AgentID  uint            `gorm:"not null;index" json:"agent_id"`
	Location string          `json:"location"`
	Price    float64         `json:"price"`
	Type     string          `json:"type"`
	Purpose  string          `json:"purpose"`
	Status   string          `gorm:"size:20" json:"-"`
	Images   []PropertyImage `gorm:"foreignKey:PropertyID" json:"-"`
}

type PropertyImage struct {
	ID         uint   `gorm:"primaryKey" json:"-"`
	PropertyID uint   `gorm:"not null;index" json:"-"`
	ImageURL   string `gorm:"not null" json:"image_url"`
	IsPrimary  bool   `json:"-"`
}
