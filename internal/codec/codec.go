// Package codec provides encode/decode interfaces for vector payload
// serialization into durable storage and the Redis cache tier.
package codec

// Codec encodes and decodes vector payloads for storage.
type Codec interface {
	// Marshal serializes v into bytes.
	Marshal(v any) ([]byte, error)
	// Unmarshal deserializes data into v (must be a pointer).
	Unmarshal(data []byte, v any) error
	// Name returns the codec identifier used for diagnostics.
	Name() string
}
