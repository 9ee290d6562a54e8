package fhircodec

import (
	"github.com/rs/zerolog"

	eng "github.com/reoring/fhircodec/internal/engine"
)

// UnknownPolicy controls how properties the type does not declare are handled.
type UnknownPolicy int

const (
	UnknownSkip   UnknownPolicy = iota // Skip the property and its whole value.
	UnknownReject                      // Fail with unknown_key.
)

// ResourcePolicy controls how an unrecognized resourceType is handled.
type ResourcePolicy int

const (
	ResourceReject   ResourcePolicy = iota // Fail with discriminator_unknown.
	ResourceFallback                       // Decode as the nearest abstract type the field allows, else the catalogue's fallback type.
)

// EnumPolicy controls codes outside a closed value set.
type EnumPolicy int

const (
	EnumReject EnumPolicy = iota // Fail with invalid_enum.
	EnumAccept                   // Keep the code as read.
)

// Severity expresses the severity level for issues.
type Severity int

const (
	Ignore Severity = iota
	Warn
	Error
)

// Strictness configures enforcement for duplicate keys.
type Strictness struct {
	OnDuplicateKey Severity // Warn or Error (duplicate JSON keys).
}

// Options bundles codec behavior. The zero value is the lenient default:
// unknown properties are skipped, unknown resources and enum codes rejected,
// no byte or depth limits.
type Options struct {
	UnknownFields    UnknownPolicy
	UnknownResources ResourcePolicy
	Enums            EnumPolicy
	// EnforceAllowed restricts a polymorphic field to its declared types.
	EnforceAllowed bool
	Strictness     Strictness
	MaxDepth       int
	MaxBytes       int64
	// Driver tokenizes input and the replay buffer. nil selects StdlibDriver.
	Driver JSONDriver
	// Logger receives debug traces and warnings. nil disables logging.
	Logger *zerolog.Logger
}

// StrictOptions rejects everything the lenient default tolerates.
func StrictOptions() Options {
	return Options{
		UnknownFields:  UnknownReject,
		EnforceAllowed: true,
		Strictness:     Strictness{OnDuplicateKey: Error},
		MaxDepth:       64,
	}
}

func (o Options) driver() JSONDriver {
	if o.Driver == nil {
		return StdlibDriver()
	}
	return o.Driver
}

func (o Options) logger() *zerolog.Logger {
	if o.Logger == nil {
		l := zerolog.Nop()
		return &l
	}
	return o.Logger
}

// duplicateSink logs duplicate keys reported under Warn.
func (o Options) duplicateSink() func(eng.SimpleIssue) {
	if o.Strictness.OnDuplicateKey != Warn {
		return nil
	}
	log := o.logger()
	return func(si eng.SimpleIssue) {
		log.Warn().Str("path", si.Path).Int64("offset", si.Offset).Msg(si.Message)
	}
}

// lastOpt mirrors the variadic option convention: the last value wins.
func lastOpt(opts []Options) Options {
	if len(opts) == 0 {
		return Options{}
	}
	return opts[len(opts)-1]
}
