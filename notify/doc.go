// Package notify is the outbound messaging contract used to deliver one-time
// codes over email or SMS.
//
// Delivery is best-effort from authcore's point of view: callers log a failed
// Send and carry on. [Breaker] wraps any [Sender] in a circuit breaker so a
// failing provider fails fast instead of stalling every OTP request.
//
// # What this package must NOT do
//
//   - Render templates. TemplateID and Variables are handed to the provider.
//   - Log message variables. They carry the code being delivered.
package notify
