package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// initDataMaxAge is the freshness bound Telegram documents for Mini-App
// launch payloads. Fixed protocol policy, not configuration.
const initDataMaxAge = 24 * time.Hour

// secretDerivationKey is the application-domain constant Telegram prescribes
// for deriving the per-bot signing secret from the bot token.
const secretDerivationKey = "WebAppData"

var (
	ErrMissingSignature  = errors.New("auth: init data missing hash field")
	ErrInvalidSignature  = errors.New("auth: init data signature mismatch")
	ErrExpiredAuthData   = errors.New("auth: init data expired")
	ErrMalformedIdentity = errors.New("auth: init data user field missing or malformed")
	ErrInvalidInitData   = errors.New("auth: init data is not a valid query string")

	errMissingBotToken = errors.New("bot token must be provided")
)

// TelegramIdentity is the user identity asserted by a verified Mini-App
// launch payload. It is transient: consumed by the identity resolver and
// never stored as-is.
type TelegramIdentity struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Username  string `json:"username"`
	PhotoURL  string `json:"photo_url"`

	// AuthDate and Hash echo the verified payload fields for audit.
	AuthDate time.Time `json:"-"`
	Hash     string    `json:"-"`
}

// TelegramID returns the external identifier in the string form used as the
// upsert key by the users service.
func (i TelegramIdentity) TelegramID() string {
	return strconv.FormatInt(i.ID, 10)
}

// InitDataVerifierConfig bundles configuration required to instantiate an
// InitDataVerifier.
type InitDataVerifierConfig struct {
	BotToken string
	Logger   *zap.Logger
	Clock    func() time.Time
}

// InitDataVerifier validates Telegram Mini-App initData payloads offline
// against the shared bot token.
type InitDataVerifier struct {
	secret []byte
	logger *zap.Logger
	clock  func() time.Time
}

// NewInitDataVerifier constructs a verifier with validated configuration.
// The per-application secret is derived once at construction.
func NewInitDataVerifier(cfg InitDataVerifierConfig) (*InitDataVerifier, error) {
	botToken := strings.TrimSpace(cfg.BotToken)
	if botToken == "" {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInitData, errMissingBotToken)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	mac := hmac.New(sha256.New, []byte(secretDerivationKey))
	mac.Write([]byte(botToken))

	return &InitDataVerifier{
		secret: mac.Sum(nil),
		logger: logger,
		clock:  clock,
	}, nil
}

// Verify validates the raw initData string and returns the embedded identity.
// It is a pure function of the payload, the bot token and the clock.
func (v *InitDataVerifier) Verify(rawInitData string) (TelegramIdentity, error) {
	values, err := url.ParseQuery(rawInitData)
	if err != nil {
		return TelegramIdentity{}, fmt.Errorf("%w: %v", ErrInvalidInitData, err)
	}

	suppliedHash := values.Get("hash")
	if suppliedHash == "" {
		return TelegramIdentity{}, ErrMissingSignature
	}
	values.Del("hash")

	expected := v.signedChecksum(canonicalDataCheckString(values))
	if !hmac.Equal([]byte(expected), []byte(suppliedHash)) {
		return TelegramIdentity{}, ErrInvalidSignature
	}

	authDateSeconds, err := strconv.ParseInt(values.Get("auth_date"), 10, 64)
	if err != nil {
		return TelegramIdentity{}, fmt.Errorf("%w: auth_date not a unix timestamp", ErrExpiredAuthData)
	}
	authDate := time.Unix(authDateSeconds, 0)
	if v.clock().Sub(authDate) > initDataMaxAge {
		return TelegramIdentity{}, ErrExpiredAuthData
	}

	userJSON := values.Get("user")
	if userJSON == "" {
		return TelegramIdentity{}, ErrMalformedIdentity
	}

	var identity TelegramIdentity
	if err := json.Unmarshal([]byte(userJSON), &identity); err != nil {
		return TelegramIdentity{}, fmt.Errorf("%w: %v", ErrMalformedIdentity, err)
	}
	if identity.ID == 0 {
		return TelegramIdentity{}, fmt.Errorf("%w: user id missing", ErrMalformedIdentity)
	}

	identity.AuthDate = authDate
	identity.Hash = suppliedHash
	return identity, nil
}

// canonicalDataCheckString serializes the signed fields as key=value lines
// sorted lexicographically ascending by key, joined with newline. The order
// is a protocol requirement: Telegram signs exactly this serialization.
func canonicalDataCheckString(values url.Values) string {
	lines := make([]string, 0, len(values))
	for key, fieldValues := range values {
		for _, value := range fieldValues {
			lines = append(lines, key+"="+value)
		}
	}
	sort.Strings(lines)
	return strings.Join(lines, "\n")
}

func (v *InitDataVerifier) signedChecksum(dataCheckString string) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(dataCheckString))
	return hex.EncodeToString(mac.Sum(nil))
}
