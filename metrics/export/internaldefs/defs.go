package internaldefs

import (
	authgate "github.com/authgate/authgate"
)

// CounterDef binds one engine counter to its exported name.
type CounterDef struct {
	ID   authgate.MetricID
	Name string
	Help string
}

// HistogramDef binds one engine histogram to its exported name.
type HistogramDef struct {
	ID   authgate.MetricID
	Name string
	Help string
}

var CounterDefs = []CounterDef{
	{ID: authgate.MetricSignupSuccess, Name: "authgate_signup_success_total", Help: "Successful user registrations."},
	{ID: authgate.MetricSignupDuplicate, Name: "authgate_signup_duplicate_total", Help: "Registrations rejected as duplicate."},
	{ID: authgate.MetricLoginSuccess, Name: "authgate_login_success_total", Help: "Password checks that opened a two-factor challenge."},
	{ID: authgate.MetricLoginFailure, Name: "authgate_login_failure_total", Help: "Failed password checks."},
	{ID: authgate.MetricChallengeIssued, Name: "authgate_challenge_issued_total", Help: "Two-factor challenges issued."},
	{ID: authgate.MetricTwoFactorSuccess, Name: "authgate_two_factor_success_total", Help: "Successful two-factor verifications."},
	{ID: authgate.MetricTwoFactorFailure, Name: "authgate_two_factor_failure_total", Help: "Failed two-factor verifications."},
	{ID: authgate.MetricTwoFactorReplay, Name: "authgate_two_factor_replay_total", Help: "Replays of an already consumed challenge."},
	{ID: authgate.MetricTokenIssued, Name: "authgate_token_issued_total", Help: "Bearer tokens issued."},
	{ID: authgate.MetricTokenVerifySuccess, Name: "authgate_token_verify_success_total", Help: "Successful token verifications."},
	{ID: authgate.MetricTokenVerifyFailure, Name: "authgate_token_verify_failure_total", Help: "Rejected token verifications."},
	{ID: authgate.MetricTokenRevoked, Name: "authgate_token_revoked_total", Help: "Tokens revoked by logout."},
}

var HistogramDefs = []HistogramDef{
	{ID: authgate.MetricVerifyLatency, Name: "authgate_verify_latency_seconds", Help: "Token verification latency histogram."},
}

var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets pads or truncates a raw bucket slice to the fixed width.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts into the cumulative form both
// exposition formats expect.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
