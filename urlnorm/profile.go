// CLAUDE:SUMMARY Normalization profiles: the toggle record, default tracking params, default tiers and the comparison profile.
// CLAUDE:EXPORTS Profile, DefaultTrackingParams, DefaultTiers, Comparable
package urlnorm

// Profile is an immutable set of normalization toggles. The zero value
// changes nothing except re-serializing the URL.
type Profile struct {
	// StripScheme drops "scheme://" entirely. The result is a comparison
	// key, not a fetchable URL; use it only for equivalence checks.
	StripScheme bool `yaml:"strip_scheme" json:"strip_scheme"`
	// StripCredentials drops "user:pass@".
	StripCredentials bool `yaml:"strip_credentials" json:"strip_credentials"`
	// StripWWW drops a leading "www." label when a registrable name remains.
	StripWWW bool `yaml:"strip_www" json:"strip_www"`
	// StripDefaultPort drops :80 on http and :443 on https.
	StripDefaultPort bool `yaml:"strip_default_port" json:"strip_default_port"`
	// StripTrailingSlash drops trailing "/" from the path, root included.
	StripTrailingSlash bool `yaml:"strip_trailing_slash" json:"strip_trailing_slash"`
	// CollapseSlashes turns runs of "/" in the path into one.
	CollapseSlashes bool `yaml:"collapse_slashes" json:"collapse_slashes"`
	// StripFragment drops the whole "#fragment".
	StripFragment bool `yaml:"strip_fragment" json:"strip_fragment"`
	// StripTextFragment drops only a ":~:text=" directive from the fragment.
	StripTextFragment bool `yaml:"strip_text_fragment" json:"strip_text_fragment"`
	// SortQuery orders query parameters by key, keeping the relative order
	// of repeated keys.
	SortQuery bool `yaml:"sort_query" json:"sort_query"`
	// StripParams lists query parameter names to remove, matched
	// case-insensitively. A trailing "*" matches by prefix ("utm_*").
	StripParams []string `yaml:"strip_params" json:"strip_params"`
	// DropEmptyQuery removes a dangling "?" with no parameters.
	DropEmptyQuery bool `yaml:"drop_empty_query" json:"drop_empty_query"`
	// NormalizeEncoding uppercases percent-escapes and decodes the ones
	// that encode unreserved characters.
	NormalizeEncoding bool `yaml:"normalize_encoding" json:"normalize_encoding"`
	// NormalizeUnicode applies NFC + IDNA to the host and percent-encodes
	// non-ASCII bytes elsewhere.
	NormalizeUnicode bool `yaml:"normalize_unicode" json:"normalize_unicode"`
	// LowercaseHost lowercases the hostname.
	LowercaseHost bool `yaml:"lowercase_host" json:"lowercase_host"`
}

// DefaultTrackingParams are the analytics and click-id parameters removed
// from every response URL and by the default tiers.
var DefaultTrackingParams = []string{
	"utm_*",
	"fbclid",
	"gclid",
	"gclsrc",
	"dclid",
	"msclkid",
	"yclid",
	"twclid",
	"igshid",
	"mc_cid",
	"mc_eid",
	"_ga",
	"_gl",
	"_hsenc",
	"_hsmi",
	"mkt_tok",
	"oly_anon_id",
	"oly_enc_id",
	"vero_id",
	"wt_mc",
}

// DefaultTiers returns the built-in tier list, cleanest first:
//
//  1. strip www and trailing slash, sort query
//  2. keep www, strip trailing slash, sort query
//  3. keep www, trailing slash and parameter order
//
// Every tier strips tracking params, fragments and default ports and
// normalizes encoding, so a looser tier never reintroduces noise a
// stricter one removed.
func DefaultTiers() []Profile {
	base := Profile{
		StripCredentials:  true,
		StripDefaultPort:  true,
		StripFragment:     true,
		StripParams:       DefaultTrackingParams,
		DropEmptyQuery:    true,
		NormalizeEncoding: true,
		NormalizeUnicode:  true,
		LowercaseHost:     true,
	}

	aggressive := base
	aggressive.StripWWW = true
	aggressive.StripTrailingSlash = true
	aggressive.CollapseSlashes = true
	aggressive.SortQuery = true

	moderate := base
	moderate.StripTrailingSlash = true
	moderate.CollapseSlashes = true
	moderate.SortQuery = true

	conservative := base

	return []Profile{aggressive, moderate, conservative}
}

// Comparable is the profile used to decide whether two known URLs are
// textually the same feed. It is deliberately lossy (scheme included).
func Comparable() Profile {
	return Profile{
		StripScheme:        true,
		StripCredentials:   true,
		StripWWW:           true,
		StripDefaultPort:   true,
		StripTrailingSlash: true,
		CollapseSlashes:    true,
		StripFragment:      true,
		StripTextFragment:  true,
		SortQuery:          true,
		StripParams:        DefaultTrackingParams,
		DropEmptyQuery:     true,
		NormalizeEncoding:  true,
		NormalizeUnicode:   true,
		LowercaseHost:      true,
	}
}
