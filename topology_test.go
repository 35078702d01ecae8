// Copyright 2023 Blink Labs Software
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

package beacon_test

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	beacon "github.com/blinklabs-io/gobeacon"
)

type topologyTestDefinition struct {
	jsonData       string
	expectedObject *beacon.TopologyConfig
}

var topologyTests = []topologyTestDefinition{
	{
		jsonData: `
{
  "bootstrapPeers": [
    {
      "address": "beacon-1.example.org",
      "port": 9000
    }
  ]
}
`,
		expectedObject: &beacon.TopologyConfig{
			BootstrapPeers: []beacon.TopologyConfigPeer{
				{
					Address: "beacon-1.example.org",
					Port:    9000,
				},
			},
		},
	},
	{
		jsonData: `
{
  "bootstrapPeers": [],
  "staticPeers": [
    {
      "address": "10.1.2.3",
      "port": 9000
    },
    {
      "address": "10.1.2.4",
      "port": 9001
    }
  ]
}
`,
		expectedObject: &beacon.TopologyConfig{
			BootstrapPeers: []beacon.TopologyConfigPeer{},
			StaticPeers: []beacon.TopologyConfigPeer{
				{
					Address: "10.1.2.3",
					Port:    9000,
				},
				{
					Address: "10.1.2.4",
					Port:    9001,
				},
			},
		},
	},
}

func TestParseTopologyConfig(t *testing.T) {
	for _, test := range topologyTests {
		topology, err := beacon.NewTopologyConfigFromReader(
			strings.NewReader(test.jsonData),
		)
		if err != nil {
			t.Fatalf("failed to load TopologyConfig from JSON data: %s", err)
		}
		if !reflect.DeepEqual(topology, test.expectedObject) {
			t.Fatalf(
				"did not get expected object\n  got:\n    %#v\n  wanted:\n    %#v",
				topology,
				test.expectedObject,
			)
		}
	}
}

func TestTopologyConfigFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "topology.json")
	if err := os.WriteFile(path, []byte(topologyTests[0].jsonData), 0o600); err != nil {
		t.Fatalf("unexpected error writing topology file: %s", err)
	}
	topology, err := beacon.NewTopologyConfigFromFile(path)
	if err != nil {
		t.Fatalf("failed to load TopologyConfig from file: %s", err)
	}
	if !reflect.DeepEqual(topology, topologyTests[0].expectedObject) {
		t.Fatalf("did not get expected object: %#v", topology)
	}
	if _, err := beacon.NewTopologyConfigFromFile(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatalf("did not get expected error for missing file")
	}
}
