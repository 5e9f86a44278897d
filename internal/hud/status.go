// Package hud reads the wagering overlay in the top-right corner of a frame
// and turns its noisy OCR text into a GameStatus.
package hud

import "fmt"

// NoRegion is the region reported when none was recognized.
const NoRegion = "NONE"

// BetTotals are the pool sizes per side.
type BetTotals struct {
	Blue int `json:"blue"`
	Red  int `json:"red"`
}

// GameStatus is the parsed result of one extraction. Fields that do not
// apply to the current branch (open or closed) keep their zero value.
type GameStatus struct {
	IsOpen        bool      `json:"is_open"`
	TimeRemaining int       `json:"time_remaining"` // seconds, open rounds only
	BetTotals     BetTotals `json:"bet_totals"`     // closed rounds only
	Rating        int       `json:"rating"`
	Region        string    `json:"region"`
}

// DefaultStatus is the status of a frame with no legible HUD.
func DefaultStatus() GameStatus {
	return GameStatus{Region: NoRegion}
}

func (s GameStatus) String() string {
	if s.IsOpen {
		return fmt.Sprintf("open %d:%02d rating=%d region=%s", s.TimeRemaining/60, s.TimeRemaining%60, s.Rating, s.Region)
	}
	return fmt.Sprintf("closed blue=%d red=%d rating=%d region=%s", s.BetTotals.Blue, s.BetTotals.Red, s.Rating, s.Region)
}
