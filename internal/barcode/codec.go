package barcode

import "strings"

// DefaultPrimaryIdentifier is the field matched against a line's expected code.
const DefaultPrimaryIdentifier = "01"

// Decoder bundles a registry with its separator and the identifier whose
// value is compared against expected codes.
type Decoder struct {
	registry  Registry
	keys      []string
	separator string
	primary   string
}

// Option configures a Decoder.
type Option func(*Decoder)

// WithSeparator overrides the group separator.
func WithSeparator(separator string) Option {
	return func(d *Decoder) {
		d.separator = separator
	}
}

// WithPrimary sets the identifier used for line matching.
func WithPrimary(id string) Option {
	return func(d *Decoder) {
		d.primary = id
	}
}

// NewDecoder creates a Decoder. A nil registry falls back to DefaultRegistry.
func NewDecoder(registry Registry, opts ...Option) *Decoder {
	if len(registry) == 0 {
		registry = DefaultRegistry()
	}

	d := &Decoder{
		registry:  registry,
		separator: GroupSeparator,
		primary:   DefaultPrimaryIdentifier,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.keys = registry.orderedKeys()
	return d
}

// Registry returns the decoder's registry.
func (d *Decoder) Registry() Registry {
	return d.registry
}

// PrimaryIdentifier returns the identifier used for line matching.
func (d *Decoder) PrimaryIdentifier() string {
	return d.primary
}

// Decode extracts all fields from raw.
func (d *Decoder) Decode(raw string) map[string]string {
	return decode(raw, d.keys, d.registry, d.separator)
}

// Primary returns the code to compare against a line's expected code. When
// the payload carries no primary field the trimmed raw payload is returned,
// so plain one-dimensional barcodes keep working.
func (d *Decoder) Primary(raw string) (string, map[string]string) {
	fields := d.Decode(strings.TrimSpace(raw))
	if v, ok := fields[d.primary]; ok && v != "" {
		return v, fields
	}
	return strings.TrimSpace(raw), fields
}
