package click

import (
	"crypto/sha1" //nolint:gosec // digest format is fixed by the gateway
	"encoding/hex"
	"strconv"
	"time"
)

// Credential is the per-request authentication value sent in the Auth header.
type Credential struct {
	MerchantUserID int64
	Digest         string
	Timestamp      int64
}

// String renders "<merchant_user_id>:<digest>:<timestamp>".
func (c Credential) String() string {
	return strconv.FormatInt(c.MerchantUserID, 10) + ":" + c.Digest + ":" + strconv.FormatInt(c.Timestamp, 10)
}

// GenerateAuthHeader derives the credential for the instant now. The digest is
// the lowercase hex SHA-1 of the decimal Unix timestamp followed by secretKey.
func GenerateAuthHeader(merchantUserID int64, secretKey string, now time.Time) Credential {
	ts := now.Unix()
	sum := sha1.Sum([]byte(strconv.FormatInt(ts, 10) + secretKey)) //nolint:gosec
	return Credential{
		MerchantUserID: merchantUserID,
		Digest:         hex.EncodeToString(sum[:]),
		Timestamp:      ts,
	}
}

// Signer issues a fresh credential for every request.
type Signer struct {
	MerchantUserID int64
	SecretKey      string
	// Now defaults to time.Now.
	Now func() time.Time
}

// Sign returns the credential for the current instant.
func (s Signer) Sign() Credential {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	return GenerateAuthHeader(s.MerchantUserID, s.SecretKey, now())
}
