package domain

import "time"

// Car is the rentable asset. The reservation engine only reads it: the
// is_available/is_validated flags gate reservation creation and daily_rate
// feeds pricing.
type Car struct {
	ID             int64     `json:"id" gorm:"primaryKey"`
	OwnerID        int64     `json:"owner_id" gorm:"index;not null"`
	Make           string    `json:"make" validate:"required"`
	Model          string    `json:"model" validate:"required"`
	Year           int       `json:"year"`
	Color          string    `json:"color,omitempty"`
	LicensePlate   string    `json:"license_plate" gorm:"uniqueIndex"`
	DailyRateCents int64     `json:"daily_rate_cents" validate:"required,gt=0"`
	Currency       string    `json:"currency" gorm:"type:varchar(3);default:'USD'"`
	IsAvailable    bool      `json:"is_available" gorm:"default:true"`
	IsValidated    bool      `json:"is_validated" gorm:"default:false;index"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (Car) TableName() string { return "cars" }

// Bookable reports whether the car may receive new reservations: the owner
// keeps it listed and an admin has validated it.
func (c *Car) Bookable() bool {
	return c.IsAvailable && c.IsValidated
}

func (c *Car) DailyRate() Money {
	return Money{Cents: c.DailyRateCents, Currency: c.Currency}
}
