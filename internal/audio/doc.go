// Package audio handles WAV encoding/decoding and chunk assembly. It
// concatenates an ordered sequence of same-format PCM chunks into one
// continuous audio artifact, sample-accurately, and reports total duration.
package audio
