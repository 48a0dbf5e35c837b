package services

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/mportier/vaultgate/internal/models"
)

const yubiCloudVerifyURL = "https://api.yubico.com/wsapi/2.0/verify"

// YubiCloudVerifier validates YubiKey OTPs against the YubiCloud validation
// service and checks that the OTP's public identity matches one of the keys
// registered on the provider.
type YubiCloudVerifier struct {
	clientID  string
	secretKey []byte // decoded API key for response signature checks
	client    *http.Client
	verifyURL string
}

func NewYubiCloudVerifier(clientID, secretKeyBase64 string, client *http.Client) (*YubiCloudVerifier, error) {
	secretKey, err := base64.StdEncoding.DecodeString(secretKeyBase64)
	if err != nil {
		return nil, fmt.Errorf("invalid yubico secret key: %w", err)
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &YubiCloudVerifier{
		clientID:  clientID,
		secretKey: secretKey,
		client:    client,
		verifyURL: yubiCloudVerifyURL,
	}, nil
}

// Validate submits the OTP to YubiCloud. A modhex OTP is 32-48 characters;
// the leading portion before the final 32 is the key's public identity.
func (y *YubiCloudVerifier) Validate(ctx context.Context, otp string, provider *models.TwoFactorProvider) (bool, error) {
	if len(otp) < 32 || len(otp) > 48 {
		return false, nil
	}
	publicID := otp[:len(otp)-32]
	if !y.keyRegistered(publicID, provider) {
		return false, nil
	}

	nonce := strings.ReplaceAll(uuid.NewString(), "-", "")
	params := url.Values{
		"id":    {y.clientID},
		"otp":   {otp},
		"nonce": {nonce},
	}
	params.Set("h", y.sign(params))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, y.verifyURL+"?"+params.Encode(), nil)
	if err != nil {
		return false, err
	}
	resp, err := y.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("yubicloud request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return false, fmt.Errorf("yubicloud response read failed: %w", err)
	}

	fields := parseYubiResponse(string(body))
	if !y.verifyResponseSignature(fields) {
		return false, nil
	}
	return fields["status"] == "OK" && fields["otp"] == otp && fields["nonce"] == nonce, nil
}

// keyRegistered checks the OTP's public identity against the Key1..Key5
// slots on the provider.
func (y *YubiCloudVerifier) keyRegistered(publicID string, provider *models.TwoFactorProvider) bool {
	for i := 1; i <= 5; i++ {
		if provider.MetaDataString(fmt.Sprintf("Key%d", i)) == publicID {
			return true
		}
	}
	return false
}

func (y *YubiCloudVerifier) sign(params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+params.Get(k))
	}

	mac := hmac.New(sha1.New, y.secretKey)
	mac.Write([]byte(strings.Join(pairs, "&")))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func (y *YubiCloudVerifier) verifyResponseSignature(fields map[string]string) bool {
	sig, ok := fields["h"]
	if !ok {
		return false
	}

	params := url.Values{}
	for k, v := range fields {
		if k != "h" {
			params.Set(k, v)
		}
	}
	expected := y.sign(params)
	return subtle.ConstantTimeCompare([]byte(sig), []byte(expected)) == 1
}

func parseYubiResponse(body string) map[string]string {
	fields := make(map[string]string)
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		key, value, found := strings.Cut(line, "=")
		if found {
			fields[key] = value
		}
	}
	return fields
}
