package iomanager

import (
	"strings"

	"tlplay/internal/media"
	"tlplay/internal/otime"
	"tlplay/internal/reader"
)

// InfoFingerprint is "path;number;key:value;..." with sorted option keys.
func InfoFingerprint(path media.Path, opts reader.Options) string {
	return join(path.Pattern(), path.Number, opts.Fingerprint())
}

// VideoFingerprint is "path;number;time;init-options;frame-options".
func VideoFingerprint(path media.Path, t otime.RationalTime, initOpts, opts reader.Options) string {
	return join(path.Pattern(), path.Number, t.String(), initOpts.Fingerprint(), opts.Fingerprint())
}

// AudioFingerprint is "path;number;range;init-options;frame-options".
func AudioFingerprint(path media.Path, r otime.TimeRange, initOpts, opts reader.Options) string {
	return join(path.Pattern(), path.Number, r.String(), initOpts.Fingerprint(), opts.Fingerprint())
}

func join(parts ...string) string {
	return strings.Join(parts, ";")
}
