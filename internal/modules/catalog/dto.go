package catalog

type CreateCarRequest struct {
	Make           string `json:"make" binding:"required"`
	Model          string `json:"model" binding:"required"`
	Year           int    `json:"year"`
	Color          string `json:"color"`
	LicensePlate   string `json:"license_plate" binding:"required"`
	DailyRateCents int64  `json:"daily_rate_cents" binding:"required,gt=0"`
	Currency       string `json:"currency"`
}

type AvailabilityRequest struct {
	Available *bool `json:"available" binding:"required"`
}

type ValidationRequest struct {
	Validated *bool `json:"validated" binding:"required"`
}
