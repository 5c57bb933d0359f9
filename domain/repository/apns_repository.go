package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pyama86/bellhop/domain/entity"
	"golang.org/x/net/http2"
)

const (
	apnsHostProduction = "https://api.push.apple.com"
	apnsHostSandbox    = "https://api.sandbox.push.apple.com"

	apnsPushTypeAlert = "alert"

	// apns-priority: 10 delivers immediately, 5 is power-considerate.
	apnsPriorityImmediate = "10"
	apnsPriorityDefault   = "5"
)

// APNsRepository delivers push notifications over the APNs HTTP/2 API
// with ES256 provider-token authorization.
type APNsRepository struct {
	credentials CredentialRepository

	// Overridable for tests.
	Client         *http.Client
	ProductionHost string
	SandboxHost    string
}

func NewAPNsRepository(credentials CredentialRepository) *APNsRepository {
	return &APNsRepository{
		credentials: credentials,
		Client: &http.Client{
			Transport: &http2.Transport{},
			Timeout:   10 * time.Second,
		},
		ProductionHost: apnsHostProduction,
		SandboxHost:    apnsHostSandbox,
	}
}

// Deliver sends one notification to one device and classifies the outcome.
// Only iOS devices are deliverable; everything else fails terminally
// without a network attempt.
func (r *APNsRepository) Deliver(ctx context.Context, device entity.Device, n entity.Notification) DeliveryResult {
	if device.Platform != entity.PlatformIOS {
		return DeliveryResult{Error: "Non-iOS device"}
	}

	creds, err := r.credentials.APNsCredentials(ctx)
	if err != nil {
		if errors.Is(err, ErrNotConfigured) {
			return DeliveryResult{Error: "APNs not configured"}
		}
		return DeliveryResult{Retryable: true, Error: err.Error()}
	}

	token, err := providerToken(creds)
	if err != nil {
		return DeliveryResult{Error: fmt.Sprintf("failed to sign provider token: %v", err)}
	}

	host := r.ProductionHost
	if device.Sandbox {
		host = r.SandboxHost
	}

	body, err := json.Marshal(payload(n))
	if err != nil {
		return DeliveryResult{Error: fmt.Sprintf("failed to encode payload: %v", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, host+"/3/device/"+device.DeviceToken, bytes.NewReader(body))
	if err != nil {
		return DeliveryResult{Error: err.Error()}
	}
	req.Header.Set("authorization", "bearer "+token)
	req.Header.Set("apns-topic", creds.BundleID)
	req.Header.Set("apns-push-type", apnsPushTypeAlert)
	req.Header.Set("apns-priority", priorityFor(n.InterruptionLevel))
	req.Header.Set("content-type", "application/json")

	resp, err := r.Client.Do(req)
	if err != nil {
		return DeliveryResult{Retryable: true, Error: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		return DeliveryResult{Success: true}
	}

	raw, _ := io.ReadAll(resp.Body)
	return DeliveryResult{
		Retryable: retryableStatus(resp.StatusCode),
		Error:     rejectionReason(raw),
	}
}

// providerToken mints a fresh ES256 token per delivery. Tokens are cheap
// and a fresh issued-at claim sidesteps APNs token-age limits.
func providerToken(creds *APNsCredentials) (string, error) {
	key, err := jwt.ParseECPrivateKeyFromPEM([]byte(creds.Key))
	if err != nil {
		return "", fmt.Errorf("failed to parse signing key: %w", err)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodES256, jwt.MapClaims{
		"iss": creds.TeamID,
		"iat": time.Now().Unix(),
	})
	token.Header["kid"] = creds.KeyID
	return token.SignedString(key)
}

func payload(n entity.Notification) map[string]any {
	aps := map[string]any{
		"alert": map[string]string{
			"title": n.Title,
			"body":  n.Body,
		},
	}
	if n.Sound != "" {
		aps["sound"] = n.Sound
	}
	if n.InterruptionLevel != "" {
		aps["interruption-level"] = string(n.InterruptionLevel)
	}
	if n.Badge != nil {
		aps["badge"] = *n.Badge
	}

	p := map[string]any{"aps": aps}
	for k, v := range n.Data {
		if k == "aps" {
			continue
		}
		p[k] = v
	}
	return p
}

func priorityFor(level entity.InterruptionLevel) string {
	if level == entity.InterruptionLevelCritical {
		return apnsPriorityImmediate
	}
	return apnsPriorityDefault
}

func retryableStatus(status int) bool {
	return status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
}

// rejectionReason extracts the APNs reason string, falling back to the
// raw body when the response is not the expected JSON shape.
func rejectionReason(raw []byte) string {
	var parsed struct {
		Reason string `json:"reason"`
	}
	if err := json.Unmarshal(raw, &parsed); err == nil && parsed.Reason != "" {
		return parsed.Reason
	}
	return string(raw)
}
