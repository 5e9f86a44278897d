package hud

// Parse applies the overlay rules to normalized text, in order:
//
//  1. no "rating" keyword means no legible HUD: default status
//  2. first 3-4 digit numeral is the rating
//  3. word after "rating on " is the region
//  4. "closed" selects the closed branch (bet totals from a numeral pair),
//     otherwise the round is open (countdown from an MM:SS token)
//
// Every numeric field falls back to 0 on its own.
func Parse(text string) GameStatus {
	if !HasKeyword(text, KeywordRating) {
		return DefaultStatus()
	}

	st := DefaultStatus()
	st.Rating = FindRating(text)
	st.Region = FindRegion(text)

	if HasKeyword(text, KeywordClosed) {
		if blue, red, ok := FindTokenPair(text); ok {
			st.BetTotals = BetTotals{Blue: ParseIntOrZero(blue), Red: ParseIntOrZero(red)}
		}
		return st
	}

	st.IsOpen = true
	if mins, secs, ok := FindTimeToken(text); ok {
		st.TimeRemaining = ParseIntOrZero(mins)*60 + ParseIntOrZero(secs)
	}
	return st
}
