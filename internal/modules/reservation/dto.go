package reservation

import "time"

type CreateRequest struct {
	CarID   int64     `json:"car_id" binding:"required"`
	StartAt time.Time `json:"start_at" binding:"required"`
	EndAt   time.Time `json:"end_at" binding:"required"`
}

type UpdateRequest struct {
	StartAt *time.Time `json:"start_at,omitempty"`
	EndAt   *time.Time `json:"end_at,omitempty"`
}

type CancelRequest struct {
	Reason string `json:"reason,omitempty"`
}
