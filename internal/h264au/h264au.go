// Package h264au splits a single wire-protocol payload — guaranteed by
// the sender to hold one or more complete coded pictures (spec §4.5) —
// into NAL units and groups them into access units, detecting keyframes
// along the way. It plays the role of scrcpy's av_parser_parse2 call
// configured with PARSER_FLAG_COMPLETE_FRAMES, without pulling in a full
// bitstream parser: since completeness is already guaranteed, grouping
// reduces to classifying NAL unit types.
package h264au

import "github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"

// SplitNALUs splits an Annex B byte range into individual NAL unit
// payloads with start codes stripped, using mediacommon's own Annex B
// unmarshaler. Falls back to treating the whole range as one NAL unit if
// it isn't valid Annex B, matching the fallback extractNALUnitsFromData
// uses elsewhere in this codebase's lineage.
func SplitNALUs(data []byte) [][]byte {
	if len(data) == 0 {
		return nil
	}
	var au h264.AnnexB
	if err := au.Unmarshal(data); err != nil {
		return [][]byte{data}
	}
	return au
}

// AccessUnit is one or more NAL units grouped as belonging to the same
// coded picture, plus whether any of them is an IDR slice.
type AccessUnit struct {
	NALUs    [][]byte
	Keyframe bool
}

// GroupAccessUnits groups a payload's NAL units into access units. A new
// access unit starts at each VCL slice NAL unit (type 1, non-IDR, or type
// 5, IDR); non-VCL NALs preceding a slice (AUD, SPS, PPS, SEI) are
// attached to that slice's access unit. This is a deliberate
// simplification of first-slice-in-picture detection, acceptable because
// the sender already guarantees complete frames per payload — the common
// case is exactly one access unit per call.
func GroupAccessUnits(nalus [][]byte) []AccessUnit {
	var units []AccessUnit
	var pending [][]byte

	for _, nalu := range nalus {
		if len(nalu) == 0 {
			continue
		}
		typ := h264.NALUType(nalu[0] & 0x1F)
		switch typ {
		case h264.NALUTypeNonIDR, h264.NALUTypeIDR:
			pending = append(pending, nalu)
			units = append(units, AccessUnit{
				NALUs:    pending,
				Keyframe: typ == h264.NALUTypeIDR,
			})
			pending = nil
		default:
			pending = append(pending, nalu)
		}
	}

	if len(pending) > 0 {
		units = append(units, AccessUnit{NALUs: pending})
	}

	return units
}

// Flatten rebuilds a single Annex-B byte range from an access unit's NAL
// units, using mediacommon's Annex B marshaler so prefixes match what a
// real H.264 bitstream uses.
func Flatten(au AccessUnit) ([]byte, error) {
	return h264.AnnexB(au.NALUs).Marshal()
}

// ExtractSPS returns the first SPS NAL unit found among nalus, or nil.
func ExtractSPS(nalus [][]byte) []byte {
	return firstOfType(nalus, h264.NALUTypeSPS)
}

// ExtractPPS returns the first PPS NAL unit found among nalus, or nil.
func ExtractPPS(nalus [][]byte) []byte {
	return firstOfType(nalus, h264.NALUTypePPS)
}

func firstOfType(nalus [][]byte, want h264.NALUType) []byte {
	for _, nalu := range nalus {
		if len(nalu) == 0 {
			continue
		}
		if h264.NALUType(nalu[0]&0x1F) == want {
			return nalu
		}
	}
	return nil
}

// Dimensions parses an SPS NAL unit and returns the coded width/height.
func Dimensions(sps []byte) (width, height int, err error) {
	var spsp h264.SPS
	if err := spsp.Unmarshal(sps); err != nil {
		return 0, 0, err
	}
	return spsp.Width(), spsp.Height(), nil
}
