package domain

import (
	"strings"

	dErrors "platbook/pkg/domain-errors"
)

// Platform identifies a listing source. The set is open: collectors register
// through configuration, so Platform is a normalized token rather than a
// closed enum. Trust ranking between platforms lives in the resolution
// policy, not here.
type Platform string

// Platforms with compiled-in default trust ranks. The verification
// collaborator is modeled as a platform so precedence rules treat its
// records like any other source, just with the highest rank.
const (
	PlatformCrexi         Platform = "crexi"
	PlatformLoopnet       Platform = "loopnet"
	PlatformRealtor       Platform = "realtor"
	PlatformZillow        Platform = "zillow"
	PlatformCountyRecords Platform = "county-records"
	PlatformEnrichment    Platform = "enrichment"
)

// ParsePlatform normalizes and validates a platform token from external
// input: lowercased, trimmed, non-empty, no whitespace.
func ParsePlatform(s string) (Platform, error) {
	p := strings.ToLower(strings.TrimSpace(s))
	if p == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "platform cannot be empty")
	}
	if strings.ContainsAny(p, " \t\n") {
		return "", dErrors.New(dErrors.CodeInvalidInput, "platform cannot contain whitespace")
	}
	return Platform(p), nil
}

func (p Platform) String() string { return string(p) }

func (p Platform) IsZero() bool { return p == "" }
