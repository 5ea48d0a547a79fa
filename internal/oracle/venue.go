package oracle

import (
	"math/rand/v2"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/MrWong99/conch/pkg/provider/places"
)

// maxDescribedVenues caps how many venues [DescribeVenues] includes.
const maxDescribedVenues = 5

// emptyVenueDescription stands in for an empty venue list.
const emptyVenueDescription = "a mysterious place where ancient flavors linger in the air"

// Selector makes the oracle's uniform random choices. Rating, price and
// distance are ignored on purpose.
type Selector struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSelector returns a Selector drawing from rng. A nil rng uses the
// package-level source of math/rand/v2.
func NewSelector(rng *rand.Rand) *Selector {
	return &Selector{rng: rng}
}

// Pick returns a uniform index in [0, n). n must be positive.
func (s *Selector) Pick(n int) int {
	if s == nil || s.rng == nil {
		return rand.IntN(n)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.IntN(n)
}

// SelectRandom returns one venue chosen uniformly, or false when venues is empty.
func (s *Selector) SelectRandom(venues []places.Venue) (places.Venue, bool) {
	if len(venues) == 0 {
		return places.Venue{}, false
	}
	return venues[s.Pick(len(venues))], true
}

// BuildMapsURL returns a Google Maps search link for v, centred on its
// coordinates.
func BuildMapsURL(v places.Venue) string {
	query := pathEscape(v.Name + ", " + v.Address)
	return "https://www.google.com/maps/search/?api=1&query=" + query +
		"&center=" + formatCoord(v.Latitude) + "," + formatCoord(v.Longitude)
}

// pathEscape percent-encodes s with spaces as %20 rather than '+'.
func pathEscape(s string) string {
	// QueryEscape already turns a literal '+' into %2B, so every '+' left is a space.
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// DescribeVenues renders up to five venues as a single line for a prompt,
// e.g. "Luigi's (Pizza restaurant, 4.5⭐) - $$".
func DescribeVenues(venues []places.Venue) string {
	if len(venues) == 0 {
		return emptyVenueDescription
	}
	if len(venues) > maxDescribedVenues {
		venues = venues[:maxDescribedVenues]
	}
	parts := make([]string, 0, len(venues))
	for _, v := range venues {
		var b strings.Builder
		b.WriteString(v.Name)
		b.WriteString(" (")
		b.WriteString(v.Category)
		b.WriteString(", ")
		b.WriteString(formatRating(v.Rating))
		b.WriteString("⭐)")
		if v.PriceLevel != "" {
			b.WriteString(" - ")
			b.WriteString(v.PriceLevel)
		}
		parts = append(parts, b.String())
	}
	return strings.Join(parts, ", ")
}

// formatRating prints a rating with at least one decimal place ("4.0", "4.25").
func formatRating(r float64) string {
	s := strconv.FormatFloat(r, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
