package internaldefs

import (
	"github.com/MrEthical07/authcore"
)

// CounterDef names one exported counter.
type CounterDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

// HistogramDef names one exported latency histogram.
type HistogramDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

// CounterDefs lists every counter in export order.
var CounterDefs = []CounterDef{
	{ID: authcore.MetricLoginSuccess, Name: "authcore_login_success_total", Help: "Logins that issued tokens."},
	{ID: authcore.MetricLoginFailure, Name: "authcore_login_failure_total", Help: "Failed credential checks and logins."},
	{ID: authcore.MetricLoginRateLimited, Name: "authcore_login_rate_limited_total", Help: "Logins refused by the failure throttle."},
	{ID: authcore.MetricLoginVerificationRequired, Name: "authcore_login_verification_required_total", Help: "Logins stopped until a contact channel is verified."},
	{ID: authcore.MetricRegisterSuccess, Name: "authcore_register_success_total", Help: "Created accounts."},
	{ID: authcore.MetricRegisterDuplicate, Name: "authcore_register_duplicate_total", Help: "Registrations rejected for a taken email, phone or username."},
	{ID: authcore.MetricRefreshSuccess, Name: "authcore_refresh_success_total", Help: "Successful refresh operations."},
	{ID: authcore.MetricRefreshFailure, Name: "authcore_refresh_failure_total", Help: "Refresh attempts with an invalid, expired or revoked token."},
	{ID: authcore.MetricRefreshRotated, Name: "authcore_refresh_rotated_total", Help: "Refresh tokens replaced by rotation."},
	{ID: authcore.MetricSessionCreated, Name: "authcore_session_created_total", Help: "Created sessions."},
	{ID: authcore.MetricSessionInvalidated, Name: "authcore_session_invalidated_total", Help: "Invalidated sessions."},
	{ID: authcore.MetricLogout, Name: "authcore_logout_total", Help: "Single-device logouts."},
	{ID: authcore.MetricLogoutAll, Name: "authcore_logout_all_total", Help: "Logout-all operations."},
	{ID: authcore.MetricOTPIssued, Name: "authcore_otp_issued_total", Help: "Issued one-time codes."},
	{ID: authcore.MetricOTPVerified, Name: "authcore_otp_verified_total", Help: "Redeemed one-time codes."},
	{ID: authcore.MetricOTPFailure, Name: "authcore_otp_failure_total", Help: "Rejected one-time codes."},
	{ID: authcore.MetricOTPAttemptsExceeded, Name: "authcore_otp_attempts_exceeded_total", Help: "Codes presented after their attempt budget ran out."},
	{ID: authcore.MetricPasswordResetRequest, Name: "authcore_password_reset_request_total", Help: "Password reset requests."},
	{ID: authcore.MetricPasswordResetSuccess, Name: "authcore_password_reset_success_total", Help: "Completed password resets."},
	{ID: authcore.MetricPasswordResetFailure, Name: "authcore_password_reset_failure_total", Help: "Rejected password reset confirmations."},
	{ID: authcore.MetricPermissionAllowed, Name: "authcore_permission_allowed_total", Help: "Permission checks that allowed access."},
	{ID: authcore.MetricPermissionDenied, Name: "authcore_permission_denied_total", Help: "Permission checks that denied access."},
	{ID: authcore.MetricRateLimitHit, Name: "authcore_rate_limit_hit_total", Help: "Requests refused by a throttle."},
	{ID: authcore.MetricAccountDeactivated, Name: "authcore_account_deactivated_total", Help: "Deactivated accounts."},
}

// HistogramDefs lists every latency histogram in export order.
var HistogramDefs = []HistogramDef{
	{ID: authcore.MetricValidateLatency, Name: "authcore_validate_latency_seconds", Help: "Access token validation latency."},
	{ID: authcore.MetricLoginLatency, Name: "authcore_login_latency_seconds", Help: "Login latency."},
}

// BucketCount is the number of histogram buckets, including +Inf.
const BucketCount = 8

// HistogramBounds are the bucket upper bounds in seconds.
var HistogramBounds = [BucketCount]string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// NormalizeBuckets copies raw into a fixed-size array, padding with zeros.
func NormalizeBuckets(raw []uint64) [BucketCount]uint64 {
	var out [BucketCount]uint64
	copy(out[:], raw)
	return out
}

// CumulativeBuckets turns per-bucket counts into Prometheus cumulative counts.
func CumulativeBuckets(raw [BucketCount]uint64) [BucketCount]uint64 {
	var out [BucketCount]uint64
	var running uint64
	for i, v := range raw {
		running += v
		out[i] = running
	}
	return out
}
