package params

import "time"

const (
	ServerBodyLimit    = 1048576 // 1 MiB
	ServerIdleTimeout  = 30 * time.Second
	ServerReadTimeout  = 10 * time.Second
	ServerWriteTimeout = 10 * time.Second

	AuthCodeKeyPrefix       = "ac:"
	DeviceCodeKeyPrefix     = "dc:"
	UserCodeKeyPrefix       = "uc:"
	ConsentRequestKeyPrefix = "cr:"
	MFAChallengeKeyPrefix   = "mc:"
	RevokedTokenKeyPrefix   = "rt:"
	SweepLeaseKeyPrefix     = "sl:"

	DefaultAccessTokenLifespan  = 5 * time.Minute
	DefaultRefreshTokenLifespan = 30 * 24 * time.Hour
	DefaultSSOSessionLifespan   = 10 * time.Hour

	AuthorizationCodeExpiration = 1 * time.Minute
	ConsentRequestExpiration    = 10 * time.Minute
	MFATokenExpiration          = 5 * time.Minute
	BrokerStateExpiration       = 10 * time.Minute

	DeviceCodeExpiration = 10 * time.Minute
	DevicePollInterval   = 5 * time.Second
	DeviceCodeLength     = 64                             // bytes of entropy before encoding
	UserCodeAlphabet     = "BCDFGHJKLMNPQRSTVWXZ23456789" // no 0/O, 1/I/L, A/4 look-alikes
	UserCodeGroupSize    = 4
	UserCodeGroups       = 2

	ClientSecretLength  = 32
	RefreshTokenLength  = 64
	OneTimeSecretLength = 43 // 32 bytes base64url encoded

	FailureRetentionPeriod = 30 * 24 * time.Hour
	AuditRetentionPeriod   = 90 * 24 * time.Hour
	FailureSweepInterval   = 1 * time.Hour
	SessionSweepInterval   = 15 * time.Minute
	AuditSweepInterval     = 12 * time.Hour
	SweepLeaseDuration     = 5 * time.Minute

	BackchannelTimeout    = 5 * time.Second
	BackchannelMaxRetries = 2
	ExternalHTTPTimeout   = 10 * time.Second
	UserInfoMaxRetries    = 2

	HealthCheckServerAddr = ":3001"
)
