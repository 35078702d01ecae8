// Copyright 2026 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cbor_test

import (
	"encoding/hex"
	"reflect"
	"testing"

	"github.com/blinklabs-io/gobeacon/cbor"
)

type decodeTestDefinition struct {
	CborHex   string
	Object    any
	BytesRead int
}

var decodeTests = []decodeTestDefinition{
	// Simple list of numbers
	{
		CborHex: "83010203",
		Object:  []any{uint64(1), uint64(2), uint64(3)},
	},
	// Multiple CBOR objects
	{
		CborHex:   "81018102",
		Object:    []any{uint64(1)},
		BytesRead: 2,
	},
}

func TestDecode(t *testing.T) {
	for _, test := range decodeTests {
		cborData, err := hex.DecodeString(test.CborHex)
		if err != nil {
			t.Fatalf("failed to decode CBOR hex: %s", err)
		}
		var dest any
		bytesRead, err := cbor.Decode(cborData, &dest)
		if err != nil {
			t.Fatalf("failed to decode CBOR: %s", err)
		}
		if test.BytesRead > 0 {
			if bytesRead != test.BytesRead {
				t.Fatalf(
					"expected to read %d bytes, read %d instead",
					test.BytesRead,
					bytesRead,
				)
			}
		}
		if !reflect.DeepEqual(dest, test.Object) {
			t.Fatalf(
				"CBOR did not decode to expected object\n  got: %#v\n  wanted: %#v",
				dest,
				test.Object,
			)
		}
	}
}

func TestDecodeIdFromList(t *testing.T) {
	testDefs := []struct {
		cborHex     string
		expectedId  int
		expectError bool
	}{
		{cborHex: "83010203", expectedId: 1},
		{cborHex: "82186400", expectedId: 100},
		{cborHex: "80", expectError: true},
		{cborHex: "8261610a", expectError: true},
	}
	for _, testDef := range testDefs {
		cborData, err := hex.DecodeString(testDef.cborHex)
		if err != nil {
			t.Fatalf("failed to decode CBOR hex: %s", err)
		}
		id, err := cbor.DecodeIdFromList(cborData)
		if testDef.expectError {
			if err == nil {
				t.Fatalf("did not get expected error for CBOR %s", testDef.cborHex)
			}
			continue
		}
		if err != nil {
			t.Fatalf("unexpected error: %s", err)
		}
		if id != testDef.expectedId {
			t.Fatalf("did not get expected ID: got %d, wanted %d", id, testDef.expectedId)
		}
	}
}

type storedThing struct {
	cbor.StructAsArray
	cbor.DecodeStoreCbor
	Slot uint64
	Data []byte
}

func (s *storedThing) UnmarshalCBOR(data []byte) error {
	return s.UnmarshalCbor(data, s)
}

func TestDecodeStoreCbor(t *testing.T) {
	// [42, h'cafe']
	cborData, err := hex.DecodeString("82182a42cafe")
	if err != nil {
		t.Fatalf("failed to decode CBOR hex: %s", err)
	}
	var dest storedThing
	if _, err := cbor.Decode(cborData, &dest); err != nil {
		t.Fatalf("failed to decode CBOR: %s", err)
	}
	if dest.Slot != 42 {
		t.Fatalf("did not get expected slot: got %d, wanted %d", dest.Slot, 42)
	}
	if hex.EncodeToString(dest.Data) != "cafe" {
		t.Fatalf("did not get expected data: got %x", dest.Data)
	}
	if hex.EncodeToString(dest.Cbor()) != "82182a42cafe" {
		t.Fatalf("did not get expected stored CBOR: got %x", dest.Cbor())
	}
}
