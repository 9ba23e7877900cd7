// Copyright 2025 The packetd Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package pdiameter

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/packetd/diamscope/protocol/pdiameter/dictionary"
)

func testContext(t *testing.T, mode dictionary.Mode) decodeContext {
	return decodeContext{dict: testDictionary(t), mode: mode}
}

func diagKinds(avp *AVP) []dictionary.DiagKind {
	var kinds []dictionary.DiagKind
	for _, diag := range avp.Diagnostics {
		kinds = append(kinds, diag.Kind)
	}
	return kinds
}

func TestDecodeAVPVendorHeaderOnly(t *testing.T) {
	b := encodeAVP(1, AVPFlagVendor|AVPFlagMandatory, vendor3GPP, nil)
	require.Len(t, b, 12)

	avp := decodeAVP(testContext(t, dictionary.ModeCurrent), b, 0)
	assert.Equal(t, "3GPP-IMSI", avp.Name)
	assert.Equal(t, "3GPP", avp.Vendor)
	assert.Equal(t, 12, avp.Consumed())
	assert.Equal(t, 0, avp.Padding)
	require.Len(t, avp.Diagnostics, 1)
	assert.Equal(t, dictionary.DiagLength, avp.Diagnostics[0].Kind)
	assert.Equal(t, "empty value", avp.Diagnostics[0].Message)
}

func TestDecodeAVPGrouped(t *testing.T) {
	b := encodeAVP(443, AVPFlagMandatory, 0, concat(
		encodeAVP(450, AVPFlagMandatory, 0, encodeUint32(1)),
		encodeAVP(444, AVPFlagMandatory, 0, []byte("1234")),
	))
	require.Len(t, b, 32)

	// 尾部追加兄弟 AVP 校验父级可以继续前进
	b = append(b, encodeAVP(264, 0, 0, []byte("host"))...)
	avps := DecodeAVPs(testDictionary(t), dictionary.ModeCurrent, b, 20)
	require.Len(t, avps, 2)

	group := avps[0]
	assert.Equal(t, 32, group.Consumed())
	assert.Empty(t, group.Diagnostics)
	require.Len(t, group.Children, 2)
	assert.Equal(t, 24, group.Children[0].Consumed()+group.Children[1].Consumed())
	assert.Equal(t, 28, group.Children[0].Offset)
	assert.Equal(t, 40, group.Children[1].Offset)
	assert.Equal(t, "1234", group.Children[1].Value.Text)

	assert.Equal(t, "Origin-Host", avps[1].Name)
	assert.Equal(t, 52, avps[1].Offset)
}

func TestDecodeAVPFixedLengthMismatch(t *testing.T) {
	b := encodeAVP(9000, 0, 0, []byte{1, 2, 3, 4, 5, 6})
	avp := decodeAVP(testContext(t, dictionary.ModeCurrent), b, 0)

	assert.Equal(t, uint32(14), avp.Length)
	assert.Equal(t, 2, avp.Padding)
	assert.Equal(t, 16, avp.Consumed())
	assert.False(t, avp.Value.Valid)
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6}, avp.Value.Raw)
	require.Len(t, avp.Diagnostics, 1)
	assert.Equal(t, dictionary.DiagLength, avp.Diagnostics[0].Kind)
	assert.Equal(t, "Test-Integer32", avp.Diagnostics[0].Field)
}

func TestDecodeAVPConsumed(t *testing.T) {
	ctx := testContext(t, dictionary.ModeCurrent)
	for n := 0; n <= 9; n++ {
		payload := make([]byte, n)
		for i := range payload {
			payload[i] = 'a'
		}
		b := encodeAVP(264, 0, 0, payload)
		avp := decodeAVP(ctx, b, 0)

		declared := avpHeaderLength + n
		assert.Equal(t, declared+(4-declared%4)%4, avp.Consumed(), "payload %d", n)
		assert.Equal(t, 0, avp.Consumed()%4, "payload %d", n)
	}
}

func TestDecodeAVPStructural(t *testing.T) {
	tests := []struct {
		name     string
		input    []byte
		consumed int
		kinds    []dictionary.DiagKind
	}{
		{
			name:     "truncated header",
			input:    []byte{0, 0, 1, 8, 0, 0},
			consumed: 6,
			kinds:    []dictionary.DiagKind{dictionary.DiagStructural},
		},
		{
			name:     "declared shorter than header",
			input:    []byte{0, 0, 1, 8, 0, 0, 0, 4, 0xFF, 0xFF, 0xFF, 0xFF},
			consumed: 12,
			kinds:    []dictionary.DiagKind{dictionary.DiagStructural},
		},
		{
			name:     "declared shorter than vendor header",
			input:    []byte{0, 0, 0, 1, 0x80, 0, 0, 10, 0, 0, 0x28, 0xAF, 0, 0, 0, 0},
			consumed: 12,
			kinds:    []dictionary.DiagKind{dictionary.DiagStructural},
		},
		{
			name:     "declared longer than buffer",
			input:    []byte{0, 0, 1, 8, 0, 0, 0, 40, 'h', 'o', 's', 't'},
			consumed: 12,
			kinds:    []dictionary.DiagKind{dictionary.DiagStructural},
		},
		{
			name:     "missing padding",
			input:    []byte{0, 0, 1, 8, 0, 0, 0, 13, 'h', 'o', 's', 't', '1'},
			consumed: 13,
			kinds:    []dictionary.DiagKind{dictionary.DiagMalformed},
		},
		{
			name:     "non-zero padding",
			input:    []byte{0, 0, 1, 8, 0, 0, 0, 13, 'h', 'o', 's', 't', '1', 0, 7, 0},
			consumed: 16,
			kinds:    []dictionary.DiagKind{dictionary.DiagMalformed},
		},
		{
			name:     "reserved flags",
			input:    []byte{0, 0, 1, 8, 0x41, 0, 0, 12, 'h', 'o', 's', 't'},
			consumed: 12,
			kinds:    []dictionary.DiagKind{dictionary.DiagMalformed},
		},
	}

	ctx := testContext(t, dictionary.ModeCurrent)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			avp := decodeAVP(ctx, tt.input, 0)
			assert.Equal(t, tt.consumed, avp.Consumed())
			assert.LessOrEqual(t, avp.Consumed(), len(tt.input))
			assert.Equal(t, tt.kinds, diagKinds(avp))
		})
	}
}

func TestDecodeAVPLongerThanBufferKeepsRaw(t *testing.T) {
	b := []byte{0, 0, 1, 8, 0, 0, 0, 40, 'h', 'o', 's', 't'}
	avp := decodeAVP(testContext(t, dictionary.ModeCurrent), b, 0)
	assert.Equal(t, "Origin-Host", avp.Name)
	assert.Equal(t, []byte("host"), avp.Payload())
}

func TestDecodeAVPsStopsAtStructuralError(t *testing.T) {
	b := concat(
		encodeAVP(264, 0, 0, []byte("host")),
		[]byte{0, 0, 1, 8, 0, 0, 0, 2},
		encodeAVP(296, 0, 0, []byte("realm")),
	)
	avps := DecodeAVPs(testDictionary(t), dictionary.ModeCurrent, b, 0)
	require.Len(t, avps, 2)
	assert.Equal(t, "Origin-Host", avps[0].Name)
	assert.Equal(t, len(b)-12, avps[1].Consumed())
}

func TestDecodeAVPUnknown(t *testing.T) {
	ctx := testContext(t, dictionary.ModeCurrent)

	t.Run("unknown code", func(t *testing.T) {
		avp := decodeAVP(ctx, encodeAVP(99999, 0, 0, []byte("data")), 0)
		assert.True(t, avp.Unknown)
		assert.Equal(t, "Unknown-AVP", avp.Name)
		assert.Equal(t, "None", avp.Vendor)
		assert.Equal(t, []byte("data"), avp.Payload())
		assert.Equal(t, []dictionary.DiagKind{dictionary.DiagIdentity}, diagKinds(avp))
	})

	t.Run("unknown vendor", func(t *testing.T) {
		avp := decodeAVP(ctx, encodeAVP(1, AVPFlagVendor, 77, []byte("data")), 0)
		assert.True(t, avp.Unknown)
		assert.Equal(t, uint32(77), avp.VendorID)
		assert.Equal(t, "Unknown", avp.Vendor)
		assert.Equal(t, []dictionary.DiagKind{dictionary.DiagIdentity, dictionary.DiagIdentity}, diagKinds(avp))
	})

	t.Run("known code other vendor", func(t *testing.T) {
		avp := decodeAVP(ctx, encodeAVP(264, AVPFlagVendor, vendor3GPP, []byte("data")), 0)
		assert.True(t, avp.Unknown)
		assert.Equal(t, "3GPP", avp.Vendor)
		assert.Equal(t, []dictionary.DiagKind{dictionary.DiagIdentity}, diagKinds(avp))
	})
}

func TestDecodeAVPValues(t *testing.T) {
	ctx := testContext(t, dictionary.ModeCurrent)

	t.Run("enumeration", func(t *testing.T) {
		avp := decodeAVP(ctx, encodeAVP(268, AVPFlagMandatory, 0, encodeUint32(2001)), 0)
		assert.Equal(t, uint64(2001), avp.Value.Uint)
		assert.Equal(t, "DIAMETER_SUCCESS", avp.Value.Name)
		assert.Equal(t, "DIAMETER_SUCCESS(2001)", avp.Value.String())
	})

	t.Run("vendor id", func(t *testing.T) {
		avp := decodeAVP(ctx, encodeAVP(266, AVPFlagMandatory, 0, encodeUint32(vendor3GPP)), 0)
		assert.Equal(t, "3GPP", avp.Value.Name)
	})

	t.Run("time", func(t *testing.T) {
		avp := decodeAVP(ctx, encodeAVP(55, 0, 0, encodeUint32(2208988800+1700000000)), 0)
		require.True(t, avp.Value.Valid)
		assert.Equal(t, time.Unix(1700000000, 0).UTC(), avp.Value.Time)
	})

	t.Run("ipv6 address", func(t *testing.T) {
		payload := append([]byte{0, 2}, make([]byte, 16)...)
		payload[17] = 1
		avp := decodeAVP(ctx, encodeAVP(257, 0, 0, payload), 0)
		assert.Equal(t, "::1", avp.Value.IP.String())
		assert.Equal(t, "Host-IP-Address.ipv6", avp.Descriptor.AddressField(avp.Value))
	})

	t.Run("unknown address family", func(t *testing.T) {
		avp := decodeAVP(ctx, encodeAVP(257, 0, 0, []byte{0, 9, 1, 2, 3, 4}), 0)
		assert.Nil(t, avp.Value.IP)
		assert.Equal(t, []dictionary.DiagKind{dictionary.DiagMalformed}, diagKinds(avp))
		assert.Equal(t, "Host-IP-Address.bytes", avp.Descriptor.AddressField(avp.Value))
	})

	t.Run("legacy address", func(t *testing.T) {
		legacy := testContext(t, dictionary.ModeLegacy)
		avp := decodeAVP(legacy, encodeAVP(257, 0, 0, []byte{192, 168, 0, 1}), 0)
		assert.Equal(t, "192.168.0.1", avp.Value.IP.String())
		assert.Empty(t, avp.Diagnostics)
	})

	t.Run("protocol override type", func(t *testing.T) {
		avp := decodeAVP(ctx, encodeAVP(702, AVPFlagVendor, vendor3GPP, []byte("<xml/>")), 0)
		assert.Equal(t, dictionary.KindUTF8String, avp.Value.Kind)
		assert.Equal(t, "<xml/>", avp.Value.Text)
		assert.Equal(t, "xml", avp.Descriptor.SubDissector)
	})
}

func TestDecodeAVPMaxDepth(t *testing.T) {
	b := encodeAVP(264, 0, 0, []byte("leaf"))
	for i := 0; i < maxDepth+6; i++ {
		b = encodeAVP(443, 0, 0, b)
	}

	avps := DecodeAVPs(testDictionary(t), dictionary.ModeCurrent, b, 0)
	require.Len(t, avps, 1)

	avp := avps[0]
	for i := 0; i < maxDepth; i++ {
		require.Len(t, avp.Children, 1, "depth %d", i)
		avp = avp.Children[0]
	}
	assert.Empty(t, avp.Children)
	assert.Equal(t, []dictionary.DiagKind{dictionary.DiagStructural}, diagKinds(avp))
}

func TestDecodeAVPVendorID(t *testing.T) {
	b := encodeAVP(873, AVPFlagVendor|AVPFlagMandatory, vendor3GPP, encodeAVP(264, 0, 0, []byte("abcd")))
	avp := decodeAVP(testContext(t, dictionary.ModeCurrent), b, 100)

	assert.Equal(t, uint32(vendor3GPP), binary.BigEndian.Uint32(b[8:12]))
	assert.Equal(t, "Service-Information", avp.Name)
	assert.True(t, avp.Flags.Vendor())
	assert.True(t, avp.Flags.Mandatory())
	assert.False(t, avp.Flags.Protected())
	require.Len(t, avp.Children, 1)
	assert.Equal(t, 112, avp.Children[0].Offset)
}
