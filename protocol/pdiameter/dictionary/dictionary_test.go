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

package dictionary

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDocument() *Document {
	return &Document{
		Vendors: []VendorEntry{
			{Name: "3GPP", Code: 10415},
			{Name: "3GPP", Code: 10416},
			{Name: "Duplicate-Code", Code: 10415},
		},
		Types: []TypeEntry{
			{Name: "MyAddress", Parent: "Address"},
			{Name: "Weird", Parent: "NoSuchParent"},
			{Name: "UTF8String", Parent: "Integer32"},
		},
		Commands: []CommandEntry{
			{Name: "Capabilities-Exchange", Code: 257},
			{Name: "Credit-Control", Code: 272},
			{Name: "Vendor-Command", Code: 8388620, Vendor: "3GPP"},
			{Name: "Dangling", Code: 1, Vendor: "Nope"},
		},
		Applications: []ApplicationEntry{
			{Name: "Diameter Common Messages", ID: 0},
			{Name: "Diameter Credit Control Application", ID: 4},
			{Name: "Shadow", ID: 4},
		},
		Attributes: []AttributeEntry{
			{Name: "Origin-Host", Code: 264, Type: "DiameterIdentity"},
			{Name: "Origin-Host-Shadow", Code: 264, Type: "UTF8String"},
			{Name: "Host-IP-Address", Code: 257, Type: "MyAddress"},
			{Name: "Result-Code", Code: 268, Type: "Unsigned32", Enums: []EnumEntry{
				{Name: "DIAMETER_SUCCESS", Code: 2001},
				{Name: "DIAMETER_LIMITED_SUCCESS", Code: 2002},
				{Name: "SHADOW", Code: 2001},
			}},
			{Name: "Subscription-Id", Code: 443, Type: "Grouped"},
			{Name: "Service-Information", Code: 873, Vendor: "3GPP", Type: "Grouped"},
			{Name: "User-Data", Code: 702, Vendor: "3GPP", Type: "OctetString"},
			{Name: "Ghost-AVP", Code: 5, Vendor: "Ghost", Type: "UTF8String"},
			{Name: "Odd-Type", Code: 6, Type: "NoSuchType"},
			{Name: "Weird-AVP", Code: 7, Type: "Weird"},
			{Name: "Broken", Code: 9999},
			{Code: 9998, Type: "OctetString"},
			{Name: "Bad-Enum", Code: 9997, Type: "OctetString", Enums: []EnumEntry{{Name: "X", Code: 1}}},
		},
		ProtoOverrides: []ProtoOverride{
			{Attribute: "User-Data", Vendor: "3GPP", Proto: "xml", Type: "UTF8String"},
			{Attribute: "Subscription-Id", Proto: "sub"},
			{Attribute: "Subscription-Id", Vendor: "None", Proto: "shadowed"},
		},
	}
}

func TestLoad(t *testing.T) {
	d, err := Load(testDocument())
	require.NotNil(t, d)
	require.Error(t, err)

	var merr *multierror.Error
	require.ErrorAs(t, err, &merr)
	assert.Len(t, merr.Errors, 4)

	t.Run("Vendors", func(t *testing.T) {
		v, ok := d.VendorByName("3GPP")
		require.True(t, ok)
		assert.Equal(t, uint32(10415), v.Code)

		_, ok = d.Vendor(10416)
		assert.False(t, ok)
		_, ok = d.VendorByName("Duplicate-Code")
		assert.False(t, ok)

		assert.Equal(t, "Unknown", d.VendorOrUnknown(42).Name)
		assert.Equal(t, "None", d.VendorOrUnknown(0).Name)
	})

	t.Run("Types", func(t *testing.T) {
		typ, ok := d.Type("MyAddress")
		require.True(t, ok)
		assert.Equal(t, KindAddress, typ.Kind())

		typ, ok = d.Type("Weird")
		require.True(t, ok)
		assert.Equal(t, KindOctetString, typ.Kind())

		typ, ok = d.Type("UTF8String")
		require.True(t, ok)
		assert.Equal(t, KindUTF8String, typ.Kind())
	})

	t.Run("Commands", func(t *testing.T) {
		name, ok := d.CommandName(257)
		assert.True(t, ok)
		assert.Equal(t, "Capabilities-Exchange", name)

		_, ok = d.CommandName(1)
		assert.False(t, ok)

		v, _ := d.VendorByName("3GPP")
		name, ok = v.CommandName(8388620)
		assert.True(t, ok)
		assert.Equal(t, "Vendor-Command", name)
		assert.Equal(t, 1, v.Commands())

		none, _ := d.Vendor(VendorNone)
		name, ok = none.CommandName(272)
		assert.True(t, ok)
		assert.Equal(t, "Credit-Control", name)
	})

	t.Run("Applications", func(t *testing.T) {
		name, ok := d.Application(4)
		assert.True(t, ok)
		assert.Equal(t, "Diameter Credit Control Application", name)

		_, ok = d.Application(16777238)
		assert.False(t, ok)
	})

	t.Run("Attributes", func(t *testing.T) {
		desc, ok := d.LookupAttribute(264, VendorNone)
		require.True(t, ok)
		assert.Equal(t, "Origin-Host", desc.Name)
		assert.Equal(t, KindDiameterIdentity, desc.Type.Kind())

		_, ok = d.AttributeByName("Origin-Host-Shadow")
		assert.False(t, ok)

		desc, ok = d.AttributeByName("Host-IP-Address")
		require.True(t, ok)
		assert.Equal(t, "MyAddress", desc.Type.Name())
		require.NotNil(t, desc.Sub)
		assert.Equal(t, "Host-IP-Address.ipv6", desc.Sub.IPv6)

		desc, ok = d.AttributeByName("Result-Code")
		require.True(t, ok)
		assert.Equal(t, map[int64]string{2001: "DIAMETER_SUCCESS", 2002: "DIAMETER_LIMITED_SUCCESS"}, desc.Enums)

		desc, ok = d.LookupAttribute(873, 10415)
		require.True(t, ok)
		assert.Equal(t, "Service-Information", desc.Name)
		assert.Equal(t, "3GPP", desc.Vendor.Name)

		desc, ok = d.LookupAttribute(5, VendorUnknown)
		require.True(t, ok)
		assert.Equal(t, "Ghost-AVP", desc.Name)

		desc, ok = d.AttributeByName("Odd-Type")
		require.True(t, ok)
		assert.Equal(t, KindOctetString, desc.Type.Kind())

		desc, ok = d.AttributeByName("Weird-AVP")
		require.True(t, ok)
		assert.Equal(t, "Weird", desc.Type.Name())

		for _, name := range []string{"Broken", "Bad-Enum"} {
			_, ok = d.AttributeByName(name)
			assert.False(t, ok, name)
		}
		_, ok = d.LookupAttribute(9998, VendorNone)
		assert.False(t, ok)
	})

	t.Run("Overrides", func(t *testing.T) {
		desc, ok := d.AttributeByName("User-Data")
		require.True(t, ok)
		assert.Equal(t, "xml", desc.SubDissector)
		assert.Equal(t, KindUTF8String, desc.Type.Kind())

		desc, ok = d.AttributeByName("Subscription-Id")
		require.True(t, ok)
		assert.Equal(t, "sub", desc.SubDissector)
		assert.Equal(t, KindGrouped, desc.Type.Kind())
	})

	t.Run("VendorAttributeNames", func(t *testing.T) {
		v, _ := d.VendorByName("3GPP")
		name, ok := v.AttributeName(702)
		assert.True(t, ok)
		assert.Equal(t, "User-Data", name)
		assert.Equal(t, 2, v.Attributes())
	})
}

func TestAttributeNeverNil(t *testing.T) {
	d, _ := Load(testDocument())

	tests := []struct {
		name   string
		code   uint32
		vendor uint32
		want   string
	}{
		{name: "known", code: 264, vendor: VendorNone, want: "Origin-Host"},
		{name: "known code other vendor", code: 264, vendor: 10415, want: "Unknown-AVP"},
		{name: "unknown code", code: 123456, vendor: VendorNone, want: "Unknown-AVP"},
		{name: "unknown vendor", code: 1, vendor: 99, want: "Unknown-AVP"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			desc := d.Attribute(tt.code, tt.vendor)
			require.NotNil(t, desc)
			assert.Equal(t, tt.want, desc.Name)
		})
	}

	unknown := d.UnknownAttribute()
	assert.Same(t, unknown, d.Attribute(123456, 0))
	assert.Equal(t, KindOctetString, unknown.Type.Kind())
}

func TestLoadEmpty(t *testing.T) {
	d, err := Load(nil)
	assert.NoError(t, err)
	assert.Equal(t, Stats{Vendors: 2, Types: len(BasicTypes())}, d.Stats())

	d, err = Load(&Document{})
	assert.NoError(t, err)
	assert.Equal(t, d.Stats(), Empty().Stats())
	assert.Equal(t, "Unknown-AVP", Empty().Attribute(264, 0).Name)
}

func TestNameTable(t *testing.T) {
	var nt nameTable
	nt.add(300, "c")
	nt.add(100, "a")
	nt.add(200, "b")
	nt.add(100, "a-shadow")

	name, ok := nt.lookup(100)
	assert.True(t, ok)
	assert.Equal(t, "a", name)
	assert.True(t, nt.sorted)

	nt.add(50, "z")
	assert.False(t, nt.sorted)
	name, ok = nt.lookup(50)
	assert.True(t, ok)
	assert.Equal(t, "z", name)

	_, ok = nt.lookup(250)
	assert.False(t, ok)
	assert.Equal(t, 5, nt.len())
}

func TestNameTableConcurrentLookup(t *testing.T) {
	var nt nameTable
	for i := 1000; i > 0; i-- {
		nt.add(uint32(i), fmt.Sprintf("name-%d", i))
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for code := 1; code <= 1000; code++ {
				name, ok := nt.lookup(uint32(code))
				assert.True(t, ok)
				assert.Equal(t, fmt.Sprintf("name-%d", code), name)
			}
		}()
	}
	wg.Wait()
}

const testDocumentJSON = `{
  "vendors": [{"name": "3GPP", "code": 10415}],
  "commands": [{"name": "Credit-Control", "code": 272}],
  "applications": [{"name": "Diameter Credit Control Application", "id": 4}],
  "attributes": [
    {"name": "Result-Code", "code": 268, "type": "Unsigned32", "enums": [{"name": "DIAMETER_SUCCESS", "code": 2001}]},
    {"name": "User-Data", "code": 702, "vendor": "3GPP", "type": "OctetString"}
  ],
  "protoOverrides": [{"attribute": "User-Data", "vendor": "3GPP", "proto": "xml"}]
}`

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dictionary.json")
	require.NoError(t, os.WriteFile(path, []byte(testDocumentJSON), 0o644))

	d, err := LoadFile(path)
	require.NoError(t, err)

	desc, ok := d.AttributeByName("User-Data")
	require.True(t, ok)
	assert.Equal(t, "xml", desc.SubDissector)
	assert.Equal(t, "3GPP", desc.Vendor.Name)

	name, ok := d.CommandName(272)
	assert.True(t, ok)
	assert.Equal(t, "Credit-Control", name)

	d, err = LoadFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
	assert.Nil(t, d)

	_, err = ParseDocument([]byte("{bad json"))
	assert.Error(t, err)
}
