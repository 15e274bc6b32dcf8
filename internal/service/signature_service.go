package service

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Signature verification errors.
var (
	ErrSignatureMalformed = errors.New("malformed signature header")
	ErrSignatureExpired   = errors.New("signature timestamp outside tolerance")
	ErrSignatureMismatch  = errors.New("signature mismatch")
)

const defaultSignatureTolerance = 5 * time.Minute

// HMACSignatureService implements ports.SignatureService using HMAC-SHA256
// over "<unix-seconds>.<body>". The header value has the form
// "t=<unix-seconds>,v1=<hex>", so receivers can reject replayed deliveries.
type HMACSignatureService struct {
	tolerance time.Duration
}

// NewHMACSignatureService creates a signature service. tolerance bounds the
// accepted clock skew on Verify; zero uses 5 minutes.
func NewHMACSignatureService(tolerance time.Duration) *HMACSignatureService {
	if tolerance <= 0 {
		tolerance = defaultSignatureTolerance
	}
	return &HMACSignatureService{tolerance: tolerance}
}

// Sign returns the signature header for body sent at ts.
func (s *HMACSignatureService) Sign(secretKey string, ts time.Time, body []byte) string {
	unix := ts.Unix()
	return fmt.Sprintf("t=%d,v1=%s", unix, s.digest(secretKey, unix, body))
}

// Verify checks header against body. The comparison is constant time.
func (s *HMACSignatureService) Verify(secretKey, header string, body []byte, now time.Time) error {
	unix, sig, err := parseSignatureHeader(header)
	if err != nil {
		return err
	}

	skew := now.Sub(time.Unix(unix, 0))
	if skew < 0 {
		skew = -skew
	}
	if skew > s.tolerance {
		return ErrSignatureExpired
	}

	if !hmac.Equal([]byte(s.digest(secretKey, unix, body)), []byte(sig)) {
		return ErrSignatureMismatch
	}
	return nil
}

func (s *HMACSignatureService) digest(secretKey string, unix int64, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secretKey))
	mac.Write([]byte(strconv.FormatInt(unix, 10)))
	mac.Write([]byte{'.'})
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func parseSignatureHeader(header string) (int64, string, error) {
	var (
		unix    int64
		sig     string
		haveTS  bool
		haveSig bool
	)
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			return 0, "", ErrSignatureMalformed
		}
		switch k {
		case "t":
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return 0, "", ErrSignatureMalformed
			}
			unix, haveTS = n, true
		case "v1":
			sig, haveSig = v, true
		}
	}
	if !haveTS || !haveSig {
		return 0, "", ErrSignatureMalformed
	}
	return unix, sig, nil
}
