package portal

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"payportal/internal/config"
	"payportal/internal/models"
)

// CallbackInfo is the normalized content of a provider callback.
type CallbackInfo struct {
	DocumentNo      string
	OrderID         string
	Status          models.TransactionStatus
	ProviderTransID string
	PaymentTime     string
	ErrorMessage    string
	Amount          string
}

// OutcomeCode is what happened to a callback, independent of the payment result.
type OutcomeCode int

const (
	OutcomeProcessed OutcomeCode = iota
	OutcomeInvalidSignature
	OutcomeMalformed
	OutcomeNotFound
	OutcomeError
)

// Outcome is handed to an Adapter to render the provider acknowledgement.
type Outcome struct {
	Code    OutcomeCode
	Message string
	Status  models.TransactionStatus
}

// Adapter is the per-portal callback capability.
type Adapter interface {
	Name() Name
	// Verify recomputes the callback MAC. It never panics on malformed input.
	Verify(payload map[string]interface{}) bool
	// Extract pulls the normalized transaction info out of a verified payload.
	Extract(payload map[string]interface{}) (*CallbackInfo, error)
	// FormatResponse renders the acknowledgement body the provider expects.
	FormatResponse(outcome Outcome) interface{}
}

// Registry maps portal names to their adapters.
type Registry struct {
	adapters map[Name]Adapter
}

// NewRegistry builds the registry for the configured environment.
func NewRegistry(cfg *config.PaymentConfig) *Registry {
	return NewRegistryWith(
		NewZaloPayAdapter(cfg.ZaloPay.Key2),
		NewGalaxyPayAdapter(cfg.GalaxyPay.Salt),
	)
}

// NewRegistryWith builds a registry from explicit adapters.
func NewRegistryWith(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[Name]Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.Name()] = a
	}
	return r
}

// Lookup returns the adapter for name.
func (r *Registry) Lookup(name Name) (Adapter, bool) {
	a, ok := r.adapters[name]
	return a, ok
}

// LookupRaw parses a client-supplied portal name and returns its adapter.
func (r *Registry) LookupRaw(raw string) (Adapter, bool) {
	name, err := Parse(raw)
	if err != nil {
		return nil, false
	}
	return r.Lookup(name)
}

// FormatFallback is the acknowledgement for portals without an adapter.
func FormatFallback(outcome Outcome) interface{} {
	return map[string]interface{}{
		"success": outcome.Code == OutcomeProcessed,
		"message": outcome.Message,
	}
}

// DecodePayload decodes a callback body keeping numbers exact, so MACs over
// re-rendered numeric fields match what the provider signed.
func DecodePayload(raw []byte) (map[string]interface{}, error) {
	var payload map[string]interface{}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode callback payload: %w", err)
	}
	if payload == nil {
		return nil, fmt.Errorf("decode callback payload: empty object")
	}
	return payload, nil
}

// stringField renders a scalar payload field as a string.
// Missing keys and nested values yield ok=false.
func stringField(m map[string]interface{}, key string) (string, bool) {
	v, present := m[key]
	if !present || v == nil {
		return "", false
	}
	switch t := v.(type) {
	case string:
		return t, true
	case json.Number:
		return t.String(), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(t), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	}
	return "", false
}

func stringOf(m map[string]interface{}, key string) string {
	s, _ := stringField(m, key)
	return s
}
