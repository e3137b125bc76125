// Package frame decodes the two advertisement payload layouts the scanner understands.
//
// Eddystone service data (service UUID 0xFEAA) is decoded with [DecodeFrame], which dispatches on
// the frame type byte to [DecodeUIDFrame], [DecodeTLMFrame] or [DecodeURLFrame]. The raw
// advertisement record of a WIT Traveller scale is decoded with [DecodeWeightFrame].
//
// All decoders are pure functions. Malformed input is reported as a *[DecodeError] whose
// [Category] matches the status slot a tracked beacon keeps for that kind of failure; decoders
// never panic on untrusted broadcast data.
package frame
