package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTOTPManager_GenerateSecret(t *testing.T) {
	tm := NewTOTPManager("VaultGate")

	secret, qrDataURL, err := tm.GenerateSecret("user@example.com")
	require.NoError(t, err)
	assert.NotEmpty(t, secret)
	assert.True(t, strings.HasPrefix(qrDataURL, "data:image/png;base64,"))
}

func TestTOTPManager_Validate(t *testing.T) {
	tm := NewTOTPManager("VaultGate")

	secret, _, err := tm.GenerateSecret("user@example.com")
	require.NoError(t, err)

	code, err := totp.GenerateCode(secret, time.Now())
	require.NoError(t, err)

	assert.True(t, tm.Validate(secret, code))
	assert.False(t, tm.Validate(secret, "000000"))
	assert.False(t, tm.Validate("", code))
	assert.False(t, tm.Validate(secret, ""))
}

func TestTimingDelay_Wait(t *testing.T) {
	td := NewTimingDelay(TimingConfig{BaseDelay: 50 * time.Millisecond})

	start := time.Now()
	td.Wait()
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestTimingDelay_WaitFrom_AccountsForElapsedWork(t *testing.T) {
	td := NewTimingDelay(TimingConfig{BaseDelay: 50 * time.Millisecond})

	start := time.Now().Add(-time.Minute)
	before := time.Now()
	td.WaitFrom(start)
	assert.Less(t, time.Since(before), 40*time.Millisecond, "already-elapsed work should not be re-waited")
}
