package models

import "time"

type DangerLevel string

const (
	DangerSafe      DangerLevel = "SAFE"
	DangerCaution   DangerLevel = "CAUTION"
	DangerWarning   DangerLevel = "WARNING"
	DangerDangerous DangerLevel = "DANGEROUS"
	DangerCritical  DangerLevel = "CRITICAL"
)

// Rank orders levels from SAFE (0) to CRITICAL (4).
func (l DangerLevel) Rank() int {
	switch l {
	case DangerCaution:
		return 1
	case DangerWarning:
		return 2
	case DangerDangerous:
		return 3
	case DangerCritical:
		return 4
	default:
		return 0
	}
}

// Spot is the catalog record whose danger fields this service owns.
type Spot struct {
	ID            string      `json:"id"`
	Name          string      `json:"name"`
	Latitude      float64     `json:"latitude"`
	Longitude     float64     `json:"longitude"`
	DangerLevel   DangerLevel `json:"dangerLevel"`
	DangerReasons []Reason    `json:"dangerReasons"`
	UpdatedAt     time.Time   `json:"updatedAt"`
}
