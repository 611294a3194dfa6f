package models

import "time"

type Space struct {
	ID          int64       `json:"id" yaml:"id"`
	Name        string      `json:"name" yaml:"name"`
	Location    string      `json:"location" yaml:"location"`
	Description string      `json:"description,omitempty" yaml:"description"`
	Capacity    int         `json:"capacity" yaml:"capacity"`
	PricePerDay *float64    `json:"price_per_day,omitempty" yaml:"price_per_day"`
	Status      SpaceStatus `json:"status" yaml:"-"`
	CreatedAt   time.Time   `json:"created_at" yaml:"-"`
	UpdatedAt   time.Time   `json:"updated_at" yaml:"-"`
}

// SweepResult summarises one reconciler pass.
type SweepResult struct {
	Completed int `json:"completed"`
	Freed     int `json:"freed"`
	Failed    int `json:"failed"`
}
