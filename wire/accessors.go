package wire

// Typed convenience accessors used by the dispatcher's built-in handlers;
// they wrap Get/Set with the coercion asInt/asUint/asFloat already apply.
// Code generated by cmd/imcgen calls Get and type-asserts instead.

// GetInt64 returns name's value as an int64.
func (m *Message) GetInt64(name string) (int64, bool) {
	v, ok := m.Get(name)
	if !ok {
		return 0, false
	}
	return asInt(v)
}

// GetUint64 returns name's value as a uint64.
func (m *Message) GetUint64(name string) (uint64, bool) {
	v, ok := m.Get(name)
	if !ok {
		return 0, false
	}
	return asUint(v)
}

// GetFloat64 returns name's value as a float64.
func (m *Message) GetFloat64(name string) (float64, bool) {
	v, ok := m.Get(name)
	if !ok {
		return 0, false
	}
	return asFloat(v)
}

// GetString returns name's value as a string (plaintext fields).
func (m *Message) GetString(name string) (string, bool) {
	v, ok := m.Get(name)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// GetBytes returns name's value as bytes (rawdata fields).
func (m *Message) GetBytes(name string) ([]byte, bool) {
	v, ok := m.Get(name)
	if !ok {
		return nil, false
	}
	b, ok := v.([]byte)
	return b, ok
}

// GetMessage returns name's value as an embedded *Message (may be nil if
// the field is validly null).
func (m *Message) GetMessage(name string) (*Message, bool) {
	v, ok := m.Get(name)
	if !ok {
		return nil, false
	}
	if v == nil {
		return nil, true
	}
	sub, ok := v.(*Message)
	return sub, ok
}

// GetMessageList returns name's value as a message-list field.
func (m *Message) GetMessageList(name string) ([]*Message, bool) {
	v, ok := m.Get(name)
	if !ok {
		return nil, false
	}
	subs, ok := v.([]*Message)
	return subs, ok
}

// MustSet panics on a validation failure; useful for built-in
// constructions (e.g. dispatcher periodic tasks) where the value is known
// good at compile time.
func (m *Message) MustSet(name string, value interface{}) *Message {
	if err := m.Set(name, value); err != nil {
		panic(err)
	}
	return m
}
