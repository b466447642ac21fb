package notification

import (
	"encoding/json"

	"go.uber.org/zap/zapcore"
)

const redacted = "[redacted]"

// Secret holds a credential. Every printing or encoding path redacts it;
// Reveal is the only way to read the value.
type Secret struct {
	v string
}

func NewSecret(v string) Secret { return Secret{v: v} }

func (s Secret) Reveal() string { return s.v }

func (s Secret) Empty() bool { return s.v == "" }

func (s Secret) String() string {
	if s.v == "" {
		return ""
	}
	return redacted
}

func (s Secret) GoString() string { return s.String() }

func (s Secret) MarshalJSON() ([]byte, error) { return json.Marshal(s.String()) }

func (s *Secret) UnmarshalJSON(b []byte) error {
	var v string
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	s.v = v
	return nil
}

func (s Secret) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("value", s.String())
	return nil
}
