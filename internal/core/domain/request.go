package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Request is one unit of work routed through the orchestrator.
type Request struct {
	ID                   string         `json:"id"`
	Kind                 string         `json:"kind"`
	Payload              map[string]any `json:"payload,omitempty"`
	TimeLimit            time.Duration  `json:"timeLimit"`
	RequiredCapabilities []string       `json:"requiredCapabilities,omitempty"`
	Tier                 Tier           `json:"tier"`
	Category             string         `json:"category,omitempty"`
}

// NewRequest builds a request with a fresh ID starting at the Critical tier.
func NewRequest(kind string, payload map[string]any, timeLimit time.Duration) *Request {
	return &Request{
		ID:        uuid.NewString(),
		Kind:      kind,
		Payload:   payload,
		TimeLimit: timeLimit,
		Tier:      TierCritical,
	}
}

// WithTimeLimit returns a copy carrying a reduced time limit. The payload
// map is shared and must be treated as read-only.
func (r *Request) WithTimeLimit(d time.Duration) *Request {
	cp := *r
	cp.TimeLimit = d
	return &cp
}

// CacheKey identifies equivalent requests for response caching. It is empty
// when the payload cannot be encoded; such requests are never cached.
func (r *Request) CacheKey() string {
	// encoding/json sorts map keys, so equal payloads hash equally.
	data, err := json.Marshal(r.Payload)
	if err != nil {
		return ""
	}
	h := sha256.New()
	h.Write([]byte(r.Kind))
	h.Write([]byte{0})
	h.Write(data)
	return r.Kind + ":" + hex.EncodeToString(h.Sum(nil))[:32]
}

// Response is returned for every request, degraded or not.
type Response struct {
	RequestID          string        `json:"requestId"`
	Decision           any           `json:"decision"`
	ProducedBy         string        `json:"producedBy"`
	OriginalComponent  string        `json:"originalComponent,omitempty"`
	Strategy           string        `json:"strategy"`
	ExecutionTime      time.Duration `json:"-"`
	ExecutionTimeMs    int64         `json:"executionTimeMs"`
	FallbacksUsed      int           `json:"fallbacksUsed"`
	FallbackDepth      int           `json:"fallbackDepth"`
	QualityDegradation float64       `json:"qualityDegradation"`
	Errors             []string      `json:"errors,omitempty"`
}

// Degraded reports whether the response came from anything but the primary.
func (r *Response) Degraded() bool {
	return r.FallbackDepth > 0 || r.QualityDegradation > 0
}
