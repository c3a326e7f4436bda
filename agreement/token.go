package agreement

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ExpiryMargin is how long before its credential's exp claim an endpoint
// stops being handed out.
const ExpiryMargin = 30 * time.Second

// TokenExpiry extracts the exp claim of a signed token without verifying its
// signature. A "Bearer " prefix is tolerated. The claim must be a numeric
// seconds-since-epoch value.
func TokenExpiry(authCode string) (time.Time, error) {
	raw := strings.TrimSpace(authCode)
	if len(raw) > 7 && strings.EqualFold(raw[:7], "bearer ") {
		raw = strings.TrimSpace(raw[7:])
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser(jwt.WithJSONNumber()).ParseUnverified(raw, claims); err != nil {
		return time.Time{}, fmt.Errorf("parse credential: %w", err)
	}
	exp, ok := claims["exp"]
	if !ok {
		return time.Time{}, fmt.Errorf("credential has no exp claim")
	}
	var secs float64
	switch v := exp.(type) {
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return time.Time{}, fmt.Errorf("credential exp claim %q: %w", v, err)
		}
		secs = f
	case float64:
		secs = v
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("credential exp claim %q: %w", v, err)
		}
		secs = f
	default:
		return time.Time{}, fmt.Errorf("credential exp claim has type %T", exp)
	}
	if math.IsNaN(secs) || math.IsInf(secs, 0) || secs >= math.MaxInt64 || secs <= math.MinInt64 {
		return time.Time{}, fmt.Errorf("credential exp claim %v is out of range", exp)
	}
	return time.Unix(int64(secs), 0), nil
}

// tokenValid reports whether the credential's expiry lies beyond now plus
// ExpiryMargin.
func tokenValid(authCode string, now time.Time) (bool, error) {
	exp, err := TokenExpiry(authCode)
	if err != nil {
		return false, err
	}
	return exp.After(now.Add(ExpiryMargin)), nil
}
