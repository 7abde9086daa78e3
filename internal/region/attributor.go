// Package region maps free-text location signals (addresses, footers,
// shipping labels) to region codes using a curated alias dictionary with a
// postal-code fallback.
package region

import (
	"regexp"
	"strings"

	"github.com/marketwatch/trendwatch/internal/market"
)

var (
	zipPattern      = regexp.MustCompile(`\b\d{5}\b`)
	usAbbrevPattern = regexp.MustCompile(`\b(A[LKZR]|C[AOT]|DE|FL|GA|HI|I[DLNA]|K[SY]|LA|M[EDAINSOT]|N[EVHJMYCD]|O[HKR]|PA|RI|S[CD]|T[NX]|UT|V[TA]|W[AVIY]|DC)\b`)
)

// countryAliases holds one country's region alias table. Aliases are
// lowercase and checked in declaration order within a country, so an alias
// that contains another (like "west virginia") must be declared before it.
type countryAliases struct {
	country string
	regions []regionAliases
}

type regionAliases struct {
	code    string
	aliases []string
}

// aliasTable is checked in fixed country priority order. A text mentioning
// both "ontario" and "california" resolves to the US entry because US is
// listed first.
var aliasTable = []countryAliases{
	{country: "US", regions: usStates},
	{country: "CA", regions: []regionAliases{
		{"CA-ON", []string{"ontario", "toronto", "ottawa"}},
		{"CA-QC", []string{"quebec", "montreal"}},
		{"CA-BC", []string{"british columbia", "vancouver"}},
		{"CA-AB", []string{"alberta", "calgary", "edmonton"}},
	}},
	{country: "GB", regions: []regionAliases{
		{"GB-ENG", []string{"england", "london", "manchester"}},
		{"GB-SCT", []string{"scotland", "edinburgh", "glasgow"}},
		{"GB-WLS", []string{"wales", "cardiff"}},
	}},
	{country: "AU", regions: []regionAliases{
		{"AU-NSW", []string{"new south wales", "sydney"}},
		{"AU-VIC", []string{"victoria", "melbourne"}},
		{"AU-QLD", []string{"queensland", "brisbane"}},
	}},
}

// Attributor implements market.Attributor over the alias dictionary.
type Attributor struct{}

var _ market.Attributor = (*Attributor)(nil)

// New returns the dictionary-backed attributor.
func New() *Attributor { return &Attributor{} }

// Attribute maps free text to a region signal. Match order: alias
// dictionary (medium), US state abbreviation (medium), bare 5-digit zip
// (low, explicit US-unknown marker). No match returns false.
func (a *Attributor) Attribute(text string) (market.RegionSignal, bool) {
	if sig, ok := a.match(text, market.ConfidenceMedium); ok {
		return sig, true
	}
	if m := zipPattern.FindString(text); m != "" {
		// A zip alone proves the country, not the state. Never guess a
		// region from it without a lookup table.
		return market.RegionSignal{
			Region:     market.RegionZipOnly,
			Confidence: market.ConfidenceLow,
			SourceText: m,
		}, true
	}
	return market.RegionSignal{}, false
}

// AttributeStructured is Attribute for structured address data (JSON-LD and
// similar), which earns high confidence on a dictionary hit. The zip
// fallback stays low confidence.
func (a *Attributor) AttributeStructured(text string) (market.RegionSignal, bool) {
	if sig, ok := a.match(text, market.ConfidenceHigh); ok {
		return sig, true
	}
	if m := zipPattern.FindString(text); m != "" {
		return market.RegionSignal{
			Region:     market.RegionZipOnly,
			Confidence: market.ConfidenceLow,
			SourceText: m,
		}, true
	}
	return market.RegionSignal{}, false
}

func (a *Attributor) match(text string, confidence market.Confidence) (market.RegionSignal, bool) {
	norm := normalize(text)
	if norm == "" {
		return market.RegionSignal{}, false
	}
	for _, country := range aliasTable {
		for _, region := range country.regions {
			for _, alias := range region.aliases {
				if strings.Contains(norm, alias) {
					return market.RegionSignal{
						Region:     region.code,
						Confidence: confidence,
						SourceText: alias,
					}, true
				}
			}
		}
	}
	// Abbreviations match against the raw text: "TX" is a state, "tx" in
	// prose usually is not.
	if m := usAbbrevPattern.FindString(text); m != "" {
		return market.RegionSignal{
			Region:     "US-" + m,
			Confidence: confidence,
			SourceText: m,
		}, true
	}
	return market.RegionSignal{}, false
}

func normalize(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

var usStates = []regionAliases{
	{"US-AL", []string{"alabama"}},
	{"US-AK", []string{"alaska"}},
	{"US-AZ", []string{"arizona", "phoenix"}},
	{"US-AR", []string{"arkansas"}},
	{"US-CA", []string{"california", "los angeles", "san francisco", "san diego"}},
	{"US-CO", []string{"colorado", "denver"}},
	{"US-CT", []string{"connecticut"}},
	{"US-DE", []string{"delaware"}},
	{"US-FL", []string{"florida", "miami", "orlando"}},
	{"US-GA", []string{"georgia", "atlanta"}},
	{"US-HI", []string{"hawaii"}},
	{"US-ID", []string{"idaho"}},
	{"US-IL", []string{"illinois", "chicago"}},
	{"US-IN", []string{"indiana", "indianapolis"}},
	{"US-IA", []string{"iowa"}},
	{"US-KS", []string{"kansas"}},
	{"US-KY", []string{"kentucky"}},
	{"US-LA", []string{"louisiana", "new orleans"}},
	{"US-ME", []string{"maine"}},
	{"US-MD", []string{"maryland", "baltimore"}},
	{"US-MA", []string{"massachusetts", "boston"}},
	{"US-MI", []string{"michigan", "detroit"}},
	{"US-MN", []string{"minnesota", "minneapolis"}},
	{"US-MS", []string{"mississippi"}},
	{"US-MO", []string{"missouri", "st. louis"}},
	{"US-MT", []string{"montana"}},
	{"US-NE", []string{"nebraska", "omaha"}},
	{"US-NV", []string{"nevada", "las vegas"}},
	{"US-NH", []string{"new hampshire"}},
	{"US-NJ", []string{"new jersey", "newark"}},
	{"US-NM", []string{"new mexico"}},
	{"US-NY", []string{"new york", "brooklyn"}},
	{"US-NC", []string{"north carolina", "charlotte", "raleigh"}},
	{"US-ND", []string{"north dakota"}},
	{"US-OH", []string{"ohio", "cleveland", "columbus"}},
	{"US-OK", []string{"oklahoma", "tulsa"}},
	{"US-OR", []string{"oregon", "portland"}},
	{"US-PA", []string{"pennsylvania", "philadelphia", "pittsburgh"}},
	{"US-RI", []string{"rhode island"}},
	{"US-SC", []string{"south carolina"}},
	{"US-SD", []string{"south dakota"}},
	{"US-TN", []string{"tennessee", "nashville", "memphis"}},
	{"US-TX", []string{"texas", "austin", "houston", "dallas", "san antonio"}},
	{"US-UT", []string{"utah", "salt lake city"}},
	{"US-VT", []string{"vermont"}},
	// West Virginia must precede Virginia: "virginia" is a substring of
	// "west virginia".
	{"US-WV", []string{"west virginia"}},
	{"US-VA", []string{"virginia", "richmond"}},
	{"US-WA", []string{"washington state", "seattle", "spokane"}},
	{"US-WI", []string{"wisconsin", "milwaukee"}},
	{"US-WY", []string{"wyoming"}},
	{"US-DC", []string{"washington, d.c.", "washington dc"}},
}
