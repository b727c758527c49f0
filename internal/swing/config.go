package swing

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Config holds the detector thresholds. It is fixed for the lifetime of a
// detector; changing any value means building a new detector and replaying
// history from the start.
// ⭐ SSOT: 탐지기 임계값은 여기서만 정의
type Config struct {
	// Formation: retracement from pivot toward origin, as a fraction of range.
	BullFormationThreshold float64 `yaml:"bull_formation_threshold" json:"bull_formation_threshold" validate:"gt=0,lte=1"`
	BearFormationThreshold float64 `yaml:"bear_formation_threshold" json:"bear_formation_threshold" validate:"gt=0,lte=1"`

	// Engulfment: both breaches must exceed this fraction of range.
	EngulfedBreachThreshold float64 `yaml:"engulfed_breach_threshold" json:"engulfed_breach_threshold" validate:"gte=0"`

	// Retention cap per shared pivot.
	MaxLegsPerPivot int `yaml:"max_legs_per_pivot" json:"max_legs_per_pivot" validate:"gte=1"`

	// Origin-proximity dedup. Range tolerance is a fraction of the larger leg's
	// range, time tolerance a fraction of the larger leg's bar count.
	ProximityRangeTolerance float64 `yaml:"proximity_range_tolerance" json:"proximity_range_tolerance" validate:"gte=0,lte=1"`
	ProximityTimeTolerance  float64 `yaml:"proximity_time_tolerance" json:"proximity_time_tolerance" validate:"gte=0,lte=1"`

	// Staleness: breach magnitude past either end, as a multiple of range.
	StaleExtensionThreshold float64 `yaml:"stale_extension_threshold" json:"stale_extension_threshold" validate:"gt=0"`
}

// DefaultConfig returns the reference thresholds.
func DefaultConfig() Config {
	return Config{
		BullFormationThreshold:  0.382,
		BearFormationThreshold:  0.382,
		EngulfedBreachThreshold: 0.236,
		MaxLegsPerPivot:         5,
		ProximityRangeTolerance: 0.05,
		ProximityTimeTolerance:  0.10,
		StaleExtensionThreshold: 3.0,
	}
}

// FormationThreshold returns the threshold for the given direction.
func (c Config) FormationThreshold(d Direction) float64 {
	if d == Bear {
		return c.BearFormationThreshold
	}
	return c.BullFormationThreshold
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Report yaml names so errors point at the config file keys.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
	return v
}

// Validate rejects out-of-range thresholds. Called by New before any bar is processed.
func (c Config) Validate() error {
	floats := map[string]float64{
		"bull_formation_threshold":  c.BullFormationThreshold,
		"bear_formation_threshold":  c.BearFormationThreshold,
		"engulfed_breach_threshold": c.EngulfedBreachThreshold,
		"proximity_range_tolerance": c.ProximityRangeTolerance,
		"proximity_time_tolerance":  c.ProximityTimeTolerance,
		"stale_extension_threshold": c.StaleExtensionThreshold,
	}
	for _, field := range sortedKeys(floats) {
		v := floats[field]
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return ValidationError{field, "must be a finite number"}
		}
	}

	if err := validate.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return ValidationError{fe.Field(), ruleMessage(fe)}
		}
		return ValidationError{"config", err.Error()}
	}

	// Staleness must be looser than engulfment or it would pre-empt it on every leg.
	if c.StaleExtensionThreshold <= c.EngulfedBreachThreshold {
		return ValidationError{"stale_extension_threshold", fmt.Sprintf("must be > engulfed_breach_threshold (%.4g)", c.EngulfedBreachThreshold)}
	}

	return nil
}

func ruleMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "gt":
		return fmt.Sprintf("must be > %s", fe.Param())
	case "gte":
		return fmt.Sprintf("must be >= %s", fe.Param())
	case "lte":
		return fmt.Sprintf("must be <= %s", fe.Param())
	default:
		return fmt.Sprintf("failed rule %s", fe.Tag())
	}
}

// Hash returns the sha256 of the config's canonical JSON. Snapshots carry it
// so a reader can tell whether they were built with the same thresholds.
func (c Config) Hash() (string, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
