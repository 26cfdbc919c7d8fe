package score

import (
	"fmt"
	"sort"
	"strings"
)

// Profile is a named set of weights for the scoring formula
type Profile struct {
	Name             string  `yaml:"name" json:"name"`
	Age              float64 `yaml:"age" json:"age"`               // Weight of freshness, 1 - normalized age
	Length           float64 `yaml:"length" json:"length"`         // Weight of normalized batch length
	Similarity       float64 `yaml:"similarity" json:"similarity"` // Weight of uniqueness, 1 - normalized similarity
	Relevancy        float64 `yaml:"relevancy" json:"relevancy"`   // Weight of the tag match ratio
	RequireSpotCheck bool    `yaml:"require_spot_check" json:"require_spot_check"`
}

var (
	// OracleProfile is used when an oracle verifies samples
	OracleProfile = Profile{
		Name:             "oracle",
		Age:              0.4,
		Length:           0.3,
		Similarity:       0.1,
		Relevancy:        0.2,
		RequireSpotCheck: true,
	}

	// NoOracleProfile scores on batch statistics alone
	NoOracleProfile = Profile{
		Name:       "no-oracle",
		Age:        0.2,
		Length:     0.3,
		Similarity: 0.3,
		Relevancy:  0.2,
	}
)

var profiles = map[string]Profile{
	OracleProfile.Name:   OracleProfile,
	NoOracleProfile.Name: NoOracleProfile,
}

// ProfileByName returns a built-in profile
func ProfileByName(name string) (Profile, error) {
	p, ok := profiles[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Profile{}, fmt.Errorf("unknown scoring profile %q (available: %s)", name, strings.Join(ProfileNames(), ", "))
	}
	return p, nil
}

// ProfileNames lists the built-in profiles
func ProfileNames() []string {
	names := make([]string, 0, len(profiles))
	for name := range profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Formula renders the weighted combination for diagnostics
func (p Profile) Formula() string {
	return fmt.Sprintf("(1 - age_norm)*%g + length_norm*%g + (1 - similarity_norm)*%g + relevancy_ratio*%g",
		p.Age, p.Length, p.Similarity, p.Relevancy)
}
