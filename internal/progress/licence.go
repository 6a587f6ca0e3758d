package progress

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"time"
)

// Tier caps: the total number of items a licence may learn.
var tierCaps = map[string]int{
	"T1": 750,
	"N2": 1500,
	"M3": 2250,
	"R4": 3000,
}

// DefaultTier applies when no licence is set.
const DefaultTier = "T1"

// LicenceTier returns the tier named in a licence. A licence is a
// dash-separated string with one part naming the tier; an empty licence
// is the default tier.
func LicenceTier(licence string) (string, error) {
	licence = strings.TrimSpace(licence)
	if licence == "" {
		return DefaultTier, nil
	}
	for _, part := range strings.Split(licence, "-") {
		if _, ok := tierCaps[strings.ToUpper(part)]; ok {
			return strings.ToUpper(part), nil
		}
	}
	return "", fmt.Errorf("%w: no tier in %q", ErrInvalidLicence, licence)
}

// TierCap returns the learn ceiling of a licence.
func TierCap(licence string) (int, error) {
	tier, err := LicenceTier(licence)
	if err != nil {
		return 0, err
	}
	return tierCaps[tier], nil
}

// DailyLearnCap returns min(tier cap, sprintDay * perDayRate).
func DailyLearnCap(licence string, sprintDay, perDayRate int) (int, error) {
	ceiling, err := TierCap(licence)
	if err != nil {
		return 0, err
	}
	return min(ceiling, sprintDay*perDayRate), nil
}

// GenerateLicence returns the starter licence for a nickname.
func GenerateLicence(nickname string) string {
	return nickname + "-T1-7K-025"
}

// GeneratePrefix returns a user prefix: nickname, the year and month of
// now as YYMM, and eight random digits.
func GeneratePrefix(nickname string, now time.Time) string {
	return fmt.Sprintf("%s-%s-%08d", nickname, now.Format("0601"), rand.IntN(100_000_000))
}
