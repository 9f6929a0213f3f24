package catalog

import "errors"

// Input shape errors. Full sanitization happens before the core.
var (
	ErrInvalidID     = errors.New("invalid spotify id")
	ErrInvalidMarket = errors.New("invalid market code")
)

// IDLength is the length of a Spotify base62 id.
const IDLength = 22

// ValidID reports whether id has the shape of a Spotify id: 22 base62 characters.
func ValidID(id string) bool {
	if len(id) != IDLength {
		return false
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		default:
			return false
		}
	}
	return true
}

// ValidMarket reports whether market is an ISO 3166-1 alpha-2 shaped code.
func ValidMarket(market string) bool {
	return len(market) == 2 &&
		market[0] >= 'A' && market[0] <= 'Z' &&
		market[1] >= 'A' && market[1] <= 'Z'
}
