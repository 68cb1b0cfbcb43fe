package provision

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// DeviceRequest is one unit of provisioning work.
type DeviceRequest struct {
	Name   string
	Key    string
	Secret string
}

// requestPayload is the JSON published on the request topic.
type requestPayload struct {
	ProvisionKey    string `json:"provisionKey"`
	ProvisionSecret string `json:"provisionSecret"`
	DeviceName      string `json:"deviceName"`
}

// Payload encodes the request for the request topic.
func (r DeviceRequest) Payload() ([]byte, error) {
	data, err := json.Marshal(requestPayload{
		ProvisionKey:    r.Key,
		ProvisionSecret: r.Secret,
		DeviceName:      r.Name,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding request for %s: %w", r.Name, err)
	}
	return data, nil
}

// maxNameAttempts bounds retries when a random suffix collides.
const maxNameAttempts = 8

// NameGenerator builds device names as prefix-SUFFIX, where SUFFIX is
// random bytes rendered as upper-case hex.
type NameGenerator struct {
	prefix      string
	suffixBytes int
	rand        io.Reader
}

// NewNameGenerator returns a generator backed by crypto/rand.
func NewNameGenerator(prefix string, suffixBytes int) *NameGenerator {
	return &NameGenerator{prefix: prefix, suffixBytes: suffixBytes, rand: rand.Reader}
}

// Next returns a new name.
func (g *NameGenerator) Next() (string, error) {
	buf := make([]byte, g.suffixBytes)
	if _, err := io.ReadFull(g.rand, buf); err != nil {
		return "", fmt.Errorf("reading random suffix: %w", err)
	}
	return g.prefix + "-" + strings.ToUpper(hex.EncodeToString(buf)), nil
}

// GenerateRequests creates count requests with unique generated names.
func GenerateRequests(cfg Config, gen *NameGenerator, count int) ([]DeviceRequest, error) {
	seen := make(map[string]struct{}, count)
	requests := make([]DeviceRequest, 0, count)

	for len(requests) < count {
		var name string
		for attempt := 0; ; attempt++ {
			if attempt == maxNameAttempts {
				return nil, fmt.Errorf("%w: suffix space exhausted after %d attempts", ErrDuplicateDeviceName, attempt)
			}
			n, err := gen.Next()
			if err != nil {
				return nil, err
			}
			if _, dup := seen[n]; !dup {
				name = n
				break
			}
		}
		seen[name] = struct{}{}
		requests = append(requests, cfg.request(name))
	}

	return requests, nil
}

// SuppliedRequests creates requests for explicitly named devices.
// Names are trimmed; empty and repeated names are rejected.
func SuppliedRequests(cfg Config, names []string) ([]DeviceRequest, error) {
	seen := make(map[string]struct{}, len(names))
	requests := make([]DeviceRequest, 0, len(names))

	for i, raw := range names {
		name := strings.TrimSpace(raw)
		if name == "" {
			return nil, fmt.Errorf("%w: entry %d is empty", ErrInvalidDeviceName, i)
		}
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateDeviceName, name)
		}
		seen[name] = struct{}{}
		requests = append(requests, cfg.request(name))
	}

	return requests, nil
}
