package types

import "encoding/json"

// redactedPlaceholder replaces secret values in logs and serialization.
const redactedPlaceholder = "***REDACTED***"

// redactedJSON is the pre-computed JSON encoding of the redacted placeholder.
var redactedJSON = []byte(`"***REDACTED***"`)

// SecretString is a string type that prevents accidental logging or
// serialization of sensitive values (portal passwords, API keys, DSNs). It
// overrides String() and MarshalJSON() to return a redacted placeholder so
// secrets never leak through fmt functions or JSON output.
//
// Use Unmask() to retrieve the raw plaintext value when it is genuinely
// needed (e.g. building an Authorization header or a pgx connection string).
type SecretString string

// String returns a redacted placeholder instead of the raw value.
func (s SecretString) String() string {
	return redactedPlaceholder
}

// MarshalJSON returns the redacted placeholder as a JSON string. Credentials
// fetched from the secret store are unmarshaled normally but can never be
// marshaled back out in plaintext.
func (s SecretString) MarshalJSON() ([]byte, error) {
	return redactedJSON, nil
}

// UnmarshalJSON accepts a plain JSON string so that Credentials can be
// decoded from the secret store payload.
func (s *SecretString) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = SecretString(raw)
	return nil
}

// Unmask returns the raw plaintext value of the secret. Usage should be
// strictly limited to the point where the value leaves the process.
func (s SecretString) Unmask() string {
	return string(s)
}
